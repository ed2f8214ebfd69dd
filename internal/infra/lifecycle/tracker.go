// Package lifecycle tracks the status of asynchronous remote calls.
//
// Every call gets its own token (a Call) owning its loading flag and
// error slot, so two overlapping operations can never race on shared
// state. Mutating operations additionally pass through a single-flight
// gate: at most one instance of a given operation is outstanding, and
// duplicate triggers share its result. The presentation layer polls
// Status snapshots instead of receiving thrown faults.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/ferrao/bankctl-go/internal/domain"
	"github.com/ferrao/bankctl-go/internal/infra/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Call is the per-call status token returned by Begin.
type Call struct {
	ID        string
	Operation string

	tracker   *Tracker
	startedAt time.Time

	mu   sync.Mutex
	done bool
	err  error
}

// Done completes the call with its outcome. Safe to call once; later
// calls are ignored.
func (c *Call) Done(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.err = err
	c.mu.Unlock()

	c.tracker.finish(c, err)
}

// Err returns the call's failure, or nil while pending or on success.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Loading reports whether the call is still in flight.
func (c *Call) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.done
}

// Status is a point-in-time view of one operation, for polling.
type Status struct {
	Operation string `json:"operation"`
	InFlight  int    `json:"in_flight"`
	Loading   bool   `json:"loading"`
	LastError string `json:"last_error,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

type notice struct {
	message string
	gen     uint64
}

// Tracker coordinates call tokens, per-operation error slots and
// self-clearing success notices.
type Tracker struct {
	metrics *observability.Metrics
	logger  *zap.Logger

	gate singleflight.Group

	mu        sync.Mutex
	inflight  map[string]int
	lastErr   map[string]string
	notices   map[string]notice
	noticeGen uint64
}

// NewTracker creates a tracker.
func NewTracker(metrics *observability.Metrics, logger *zap.Logger) *Tracker {
	return &Tracker{
		metrics:  metrics,
		logger:   logger,
		inflight: make(map[string]int),
		lastErr:  make(map[string]string),
		notices:  make(map[string]notice),
	}
}

// Begin opens a new call token for operation and clears the operation's
// previous error, mirroring the contract that dispatching a call wipes
// the stale failure message.
func (t *Tracker) Begin(operation string) *Call {
	c := &Call{
		ID:        uuid.NewString(),
		Operation: operation,
		tracker:   t,
		startedAt: time.Now(),
	}

	t.mu.Lock()
	t.inflight[operation]++
	delete(t.lastErr, operation)
	t.mu.Unlock()

	t.logger.Debug("call started",
		zap.String("operation", operation),
		zap.String("call_id", c.ID),
	)
	return c
}

func (t *Tracker) finish(c *Call, err error) {
	elapsed := time.Since(c.startedAt)

	t.mu.Lock()
	if t.inflight[c.Operation] > 0 {
		t.inflight[c.Operation]--
	}
	if err != nil {
		t.lastErr[c.Operation] = domain.FailureMessage(err)
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordCallDuration(c.Operation, elapsed)
		if err != nil {
			t.metrics.IncrCall("error")
			t.metrics.IncrRemoteFailure(domain.FailureKind(err))
		} else {
			t.metrics.IncrCall("success")
		}
	}

	if err != nil {
		t.logger.Warn("call failed",
			zap.String("operation", c.Operation),
			zap.String("call_id", c.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	t.logger.Debug("call finished",
		zap.String("operation", c.Operation),
		zap.String("call_id", c.ID),
		zap.Duration("elapsed", elapsed),
	)
}

// Run executes fn under a fresh call token. Concurrent runs of the same
// operation are allowed; each owns its own token.
func (t *Tracker) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	call := t.Begin(operation)
	err := fn(ctx)
	call.Done(err)
	return err
}

// RunExclusive executes fn under the single-flight gate: while one
// instance of operation is outstanding, duplicate triggers wait and
// share its result rather than dispatching a second remote call.
func (t *Tracker) RunExclusive(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err, _ := t.gate.Do(operation, func() (any, error) {
		return nil, t.Run(ctx, operation, fn)
	})
	return err
}

// Status returns the current view of one operation.
func (t *Tracker) Status(operation string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.inflight[operation]
	return Status{
		Operation: operation,
		InFlight:  n,
		Loading:   n > 0,
		LastError: t.lastErr[operation],
		Notice:    t.notices[operation].message,
	}
}

// Busy reports whether any operation is in flight.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.inflight {
		if n > 0 {
			return true
		}
	}
	return false
}

// LastError returns the operation's surfaced failure message, if any.
func (t *Tracker) LastError(operation string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr[operation]
}

// SetNotice publishes a success message for operation that clears
// itself after ttl, unless a newer notice replaced it first.
func (t *Tracker) SetNotice(operation, message string, ttl time.Duration) {
	t.mu.Lock()
	t.noticeGen++
	gen := t.noticeGen
	t.notices[operation] = notice{message: message, gen: gen}
	t.mu.Unlock()

	time.AfterFunc(ttl, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.notices[operation].gen == gen {
			delete(t.notices, operation)
		}
	})
}

// Notice returns the operation's current success message, if any.
func (t *Tracker) Notice(operation string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notices[operation].message
}
