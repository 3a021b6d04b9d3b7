package flightlog

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.BeginSession(1, time.UnixMilli(1700000000000), "backup test"); err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	t.Run("tailsql endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		// Registered routes may still answer 403 depending on debug access.
		if w.Code == http.StatusNotFound {
			t.Error("Route /debug/tailsql/ should be registered, got 404")
		}
	})

	t.Run("backup endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code == http.StatusNotFound {
			t.Error("Route /debug/backup should be registered, got 404")
		}

		if w.Code == http.StatusOK {
			if w.Header().Get("Content-Disposition") == "" {
				t.Error("Expected Content-Disposition header on backup download")
			}
			if w.Header().Get("Content-Encoding") != "gzip" {
				t.Errorf("Expected gzip encoding, got %q", w.Header().Get("Content-Encoding"))
			}
			// gzip magic bytes
			if !bytes.HasPrefix(w.Body.Bytes(), []byte{0x1f, 0x8b}) {
				t.Error("Expected gzip-compressed body")
			}
		}
	})
}
