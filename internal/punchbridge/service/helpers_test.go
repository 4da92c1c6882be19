package service_test

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/service"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// recordingStatus captures SetServing transitions.
type recordingStatus struct {
	mu    sync.Mutex
	state map[string]bool
	calls int
}

func newRecordingStatus() *recordingStatus {
	return &recordingStatus{state: make(map[string]bool)}
}

func (r *recordingStatus) SetServing(c string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[c] = ok
	r.calls++
}

func (r *recordingStatus) get(c string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state[c]
	return v, ok
}

func utcDay() service.BusinessDay {
	return service.BusinessDay{BoundaryHour: 18, Location: time.UTC}
}
