// Package main renders post-flight reports from a recorded flight log:
// trajectory and separation PNGs, an HTML dashboard and a text summary.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/flightlog"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/report"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/units"
)

// Config holds configuration for the report renderer.
type Config struct {
	DBPath  string
	Session string
	OutDir  string
	Units   string
	List    bool
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.DBPath, "db", "flight.db", "Path to the flight log database")
	flag.StringVar(&cfg.Session, "session", "", "Session id to report on (default: most recent)")
	flag.StringVar(&cfg.OutDir, "out", "reports", "Output directory for rendered files")
	flag.StringVar(&cfg.Units, "units", units.MPS, "Speed units for the summary: "+units.GetValidUnitsString())
	flag.BoolVar(&cfg.List, "list", false, "List recorded sessions and exit")

	flag.Parse()

	return cfg
}

func main() {
	cfg := parseFlags()

	if !units.IsValid(cfg.Units) {
		log.Fatalf("invalid units %q, valid: %s", cfg.Units, units.GetValidUnitsString())
	}

	db, err := flightlog.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open flight log: %v", err)
	}
	defer db.Close()

	if cfg.List {
		listSessions(db)
		return
	}

	session := cfg.Session
	if session == "" {
		latest, err := db.LatestSession()
		if err != nil {
			log.Fatalf("no session to report on: %v", err)
		}
		session = latest.ID
	}

	r, err := report.Load(db, session)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	trajectory := filepath.Join(cfg.OutDir, "trajectory.png")
	if err := r.WriteTrajectoryPNG(trajectory); err != nil {
		log.Fatalf("failed to render trajectory: %v", err)
	}
	log.Printf("wrote %s", trajectory)

	// A single-drone flight has no pairwise separation; not an error.
	separation := filepath.Join(cfg.OutDir, "separation.png")
	if err := r.WriteSeparationPNG(separation); err != nil {
		log.Printf("skipping separation plot: %v", err)
	} else {
		log.Printf("wrote %s", separation)
	}

	dashboard := filepath.Join(cfg.OutDir, "dashboard.html")
	if err := r.WriteDashboardHTML(dashboard); err != nil {
		log.Fatalf("failed to render dashboard: %v", err)
	}
	log.Printf("wrote %s", dashboard)

	fmt.Print(r.Summary(cfg.Units))
}

func listSessions(db *flightlog.DB) {
	sessions, err := db.Sessions()
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return
	}
	for _, s := range sessions {
		fmt.Println(s.String())
	}
}
