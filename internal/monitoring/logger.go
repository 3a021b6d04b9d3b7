// Package monitoring carries the process-wide diagnostic logger. Components
// log through Logf with a bracketed prefix ("[link]", "[swarm]", "[drone]")
// so output from the background goroutines stays attributable.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	rateMu   sync.Mutex
	rateLast map[string]time.Time
)

// RateLimitedLogf logs at most once per interval for a given key, dropping
// calls in between. Control loops use this for warnings that would otherwise
// fire every tick.
func RateLimitedLogf(key string, interval time.Duration, format string, v ...interface{}) {
	rateMu.Lock()
	if rateLast == nil {
		rateLast = make(map[string]time.Time)
	}
	now := time.Now()
	if last, ok := rateLast[key]; ok && now.Sub(last) < interval {
		rateMu.Unlock()
		return
	}
	rateLast[key] = now
	rateMu.Unlock()

	Logf(format, v...)
}
