package session

import (
	"testing"
	"time"
)

func TestPollingWatcherReportsArrivalAndDeparture(t *testing.T) {
	calls := 0
	snapshots := [][]string{
		{},
		{"COM3"},
		{"COM3"},
		{},
	}
	probe := func() ([]string, error) {
		idx := calls
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		calls++
		return snapshots[idx], nil
	}

	w := NewPollingWatcher(5*time.Millisecond, probe, nil)
	defer w.Stop()

	var got []Arrival
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case e := <-w.Events():
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}

	if got[0].Kind != ArrivalConnected || got[0].Port != "COM3" {
		t.Fatalf("expected connected COM3 first, got %+v", got[0])
	}
	if got[1].Kind != ArrivalDisconnected || got[1].Port != "COM3" {
		t.Fatalf("expected disconnected COM3 second, got %+v", got[1])
	}
}

func TestPollingWatcherStopClosesEvents(t *testing.T) {
	w := NewPollingWatcher(5*time.Millisecond, func() ([]string, error) { return nil, nil }, nil)
	w.Stop()
	select {
	case _, ok := <-w.Events():
		if ok {
			t.Fatalf("expected channel closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for channel close")
	}
}
