// internal/session/watcher.go
// Background device-arrival monitoring (spec.md §5): runs on a separate
// task from any Session and publishes arrival/departure events to session
// owners over a single-producer/single-consumer channel, so a CLI or
// long-running daemon can notice a device appear without polling a
// Session directly.
package session

import "time"

// ArrivalKind distinguishes a device showing up from one disappearing.
type ArrivalKind int

const (
	ArrivalConnected ArrivalKind = iota
	ArrivalDisconnected
)

// Arrival is one event a Watcher publishes.
type Arrival struct {
	Kind ArrivalKind
	Port string
}

// Watcher is implemented by a vendor-specific or OS-specific device
// enumerator (USB hotplug, serial port polling) that runs its own
// goroutine and feeds Events until Stop is called.
type Watcher interface {
	// Events returns the SPSC channel this watcher publishes on. The same
	// channel is returned on every call; there is exactly one producer
	// (the watcher's background goroutine) and callers must have exactly
	// one consumer.
	Events() <-chan Arrival

	// Stop ends the background goroutine and closes the Events channel.
	// Safe to call more than once.
	Stop()
}

// pollingWatcher is a Watcher driven by a caller-supplied probe function
// polled at a fixed interval, used where no OS hotplug API is wired in
// (tests, or a platform without native USB hotplug notifications).
type pollingWatcher struct {
	events chan Arrival
	stop   chan struct{}
}

// NewPollingWatcher starts a goroutine that calls probe every interval and
// publishes an Arrival for each port that has appeared or disappeared
// since the previous poll. probe returns the full set of currently
// connected ports; the watcher diffs it against its last snapshot.
func NewPollingWatcher(interval time.Duration, probe func() ([]string, error), onError func(error)) *pollingWatcher {
	w := &pollingWatcher{
		events: make(chan Arrival, 16),
		stop:   make(chan struct{}),
	}
	go w.run(interval, probe, onError)
	return w
}

func (w *pollingWatcher) run(interval time.Duration, probe func() ([]string, error), onError func(error)) {
	defer close(w.events)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	known := map[string]bool{}
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		ports, err := probe()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		seen := map[string]bool{}
		for _, p := range ports {
			seen[p] = true
			if !known[p] {
				select {
				case w.events <- Arrival{Kind: ArrivalConnected, Port: p}:
				case <-w.stop:
					return
				}
			}
		}
		for p := range known {
			if !seen[p] {
				select {
				case w.events <- Arrival{Kind: ArrivalDisconnected, Port: p}:
				case <-w.stop:
					return
				}
			}
		}
		known = seen
	}
}

func (w *pollingWatcher) Events() <-chan Arrival { return w.events }

func (w *pollingWatcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}
