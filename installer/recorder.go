package installer

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Recorder is an in-memory Installer for tests and dry runs: it records every
// request and can be scripted to reject a number of installs.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
	failNext int
	statsFor []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Install(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return fmt.Errorf("switch %s rejected flow: %w", req.Switch, ErrInstallFailure)
	}
	r.requests = append(r.requests, req)
	return nil
}

func (r *Recorder) QueryFlowStats(_ context.Context, switchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor = append(r.statsFor, switchID)
	return nil
}

// FailNext makes the next n installs fail.
func (r *Recorder) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// Requests returns a copy of everything recorded so far.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// StatsQueries returns the switches whose stats were pulled.
func (r *Recorder) StatsQueries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statsFor))
	copy(out, r.statsFor)
	return out
}

// Reset clears recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
	r.statsFor = nil
}

// Logging is an Installer that only logs requests. It is the default
// collaborator for the standalone binary when no switch session is attached.
type Logging struct{}

func (Logging) Install(_ context.Context, req Request) error {
	log.Infof("installer: %s", req)
	return nil
}

func (Logging) QueryFlowStats(_ context.Context, switchID string) error {
	log.Infof("installer: flow-stats query for switch %s", switchID)
	return nil
}
