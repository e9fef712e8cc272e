// cmd/flashcore-monitor/main.go
// Local read-only HTTP status server (spec.md §5: "background device-
// arrival monitoring on a separate task via SPSC channel"). Wraps an
// internal/session.Watcher in a small ring buffer and serves it over gin,
// so an operator can watch device arrivals/departures from a browser
// instead of tailing CLI output. Grounded on the teacher's gin-based
// internal/server (health + status endpoints over a background poller),
// generalized from polling a hasher-host's job queue to polling serial
// ports for bootrom/DA device strings.
package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"flashcore/internal/flashlog"
	"flashcore/internal/session"
)

// serialPortGlobs are the device-node patterns every Android bootrom/DA
// port shows up under on Linux (EDL/BROM/BSL all enumerate as a USB-ACM or
// USB-serial adapter).
var serialPortGlobs = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

func probeSerialPorts() ([]string, error) {
	var ports []string
	for _, pattern := range serialPortGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		ports = append(ports, matches...)
	}
	return ports, nil
}

func kindString(k session.ArrivalKind) string {
	if k == session.ArrivalConnected {
		return "connected"
	}
	return "disconnected"
}

// arrivalLog is a small fixed-capacity ring buffer of the most recent
// arrivals, guarded for concurrent reads from HTTP handlers and writes from
// the watcher-draining goroutine.
type arrivalLog struct {
	mu   sync.Mutex
	cap  int
	logs []map[string]any
}

func newArrivalLog(capacity int) *arrivalLog {
	return &arrivalLog{cap: capacity}
}

func (l *arrivalLog) record(a session.Arrival) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, map[string]any{
		"kind": kindString(a.Kind),
		"port": a.Port,
	})
	if len(l.logs) > l.cap {
		l.logs = l.logs[len(l.logs)-l.cap:]
	}
}

func (l *arrivalLog) snapshot() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]map[string]any, len(l.logs))
	copy(out, l.logs)
	return out
}

func main() {
	addr := flag.String("addr", ":8088", "address to serve the status endpoints on")
	pollInterval := flag.Duration("poll", 2*time.Second, "serial port poll interval")
	flag.Parse()

	log := flashlog.New(os.Stderr, flashlog.LevelFromEnv(), "monitor")

	arrivals := newArrivalLog(200)
	watcher := session.NewPollingWatcher(*pollInterval, probeSerialPorts, func(err error) {
		log.Warnf("probe error: %v", err)
	})
	defer watcher.Stop()

	go func() {
		for a := range watcher.Events() {
			arrivals.record(a)
			log.Infof("%s: %s", kindString(a.Kind), a.Port)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/arrivals", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"arrivals": arrivals.snapshot()})
	})

	log.Infof("flashcore-monitor listening on %s", *addr)
	if err := router.Run(*addr); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(1)
	}
}
