package installer

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"controlplane/metrics"
)

// Dispatcher decouples the core from the installer collaborator. Submit is
// non-blocking; a worker drains the queue and retries rejected installs up to
// a bounded limit. Repeated failure surfaces as an operational alert, not as
// topology state: the model is independent of switch acknowledgements.
type Dispatcher struct {
	target  Installer
	queue   chan Request
	retries int
	backoff time.Duration

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
	done     chan struct{}
}

func NewDispatcher(target Installer, queueSize, retries int, backoff time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		target:  target,
		queue:   make(chan Request, queueSize),
		retries: retries,
		backoff: backoff,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit enqueues a request without blocking. A full queue drops the request
// with an alert; the caller's critical section must never stall on installs.
func (d *Dispatcher) Submit(req Request) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warnf("installer: dispatcher stopped, dropping %s", req)
		return
	}
	select {
	case d.queue <- req:
	default:
		metrics.InstallFailures.Inc()
		log.Errorf("installer: queue full, dropping %s", req)
	}
}

// SubmitAll enqueues a batch of requests.
func (d *Dispatcher) SubmitAll(reqs []Request) {
	for _, req := range reqs {
		d.Submit(req)
	}
}

// QueryFlowStats passes a statistics pull through to the collaborator.
func (d *Dispatcher) QueryFlowStats(ctx context.Context, switchID string) error {
	return d.target.QueryFlowStats(ctx, switchID)
}

// Stop drains pending requests and shuts the worker down.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for req := range d.queue {
		d.deliver(req)
	}
}

func (d *Dispatcher) deliver(req Request) {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			metrics.InstallRetries.Inc()
			time.Sleep(d.backoff)
		}
		err = d.target.Install(context.Background(), req)
		if err == nil {
			log.Debugf("installer: delivered %s", req)
			return
		}
		log.Warnf("installer: attempt %d failed for %s: %v", attempt+1, req, err)
	}
	metrics.InstallFailures.Inc()
	log.Errorf("installer: giving up on %s after %d attempts: %v",
		req, d.retries+1, fmt.Errorf("%w: %v", ErrInstallFailure, err))
}
