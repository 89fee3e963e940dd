package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

// failureThreshold is the number of consecutive failures that trips the
// breaker from closed to open.
const failureThreshold = 5

// CircuitOpenError is returned by every Protected method while the breaker
// is open. RetryAfter is a hint, not a guarantee: a concurrent half-open
// probe may close the circuit sooner.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open, retry after %s", e.RetryAfter)
}

var (
	callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diagramhub",
		Subsystem: "storage",
		Name:      "call_duration_seconds",
		Help:      "Duration of storage engine calls guarded by the circuit breaker.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	circuitTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diagramhub",
		Subsystem: "storage",
		Name:      "circuit_trips_total",
		Help:      "Number of times the storage circuit breaker has opened.",
	}, []string{})
)

func init() {
	prometheus.MustRegister(callDuration, circuitTrips)
}

// Protected is the C5 wrapper: any Engine guarded by a CLOSED/OPEN/HALF_OPEN
// circuit breaker, with duration and trip metrics exported via
// prometheus/client_golang.
type Protected struct {
	inner  Engine
	logger *logrus.Entry

	mu           sync.Mutex
	state        circuitState
	failures     int
	openUntil    time.Time
	backoffState *backoff.ExponentialBackOff
}

// NewProtected wraps inner in a circuit breaker.
func NewProtected(inner Engine, logger *logrus.Entry) *Protected {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never stop producing intervals; trips are unbounded in count
	return &Protected{
		inner:        inner,
		logger:       logger.WithField("component", "storage.protected"),
		backoffState: b,
	}
}

var _ Engine = (*Protected)(nil)

// allow reports whether a call may proceed, transitioning OPEN to HALF_OPEN
// once the cooldown has elapsed.
func (p *Protected) allow() (bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed:
		return true, 0
	case stateHalfOpen:
		return true, 0
	case stateOpen:
		remaining := time.Until(p.openUntil)
		if remaining <= 0 {
			p.state = stateHalfOpen
			return true, 0
		}
		return false, remaining
	}
	return true, 0
}

func (p *Protected) recordResult(operation string, dur time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	callDuration.WithLabelValues(operation, outcome).Observe(dur.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		if p.state == stateHalfOpen {
			p.logger.Info("circuit breaker closing after successful probe")
		}
		p.state = stateClosed
		p.failures = 0
		p.backoffState.Reset()
		return
	}

	if p.state == stateHalfOpen {
		p.trip()
		return
	}

	p.failures++
	if p.failures >= failureThreshold {
		p.trip()
	}
}

// trip must be called with mu held.
func (p *Protected) trip() {
	p.state = stateOpen
	p.openUntil = time.Now().Add(p.backoffState.NextBackOff())
	p.failures = 0
	circuitTrips.WithLabelValues().Inc()
	p.logger.WithField("openUntil", p.openUntil).Warn("circuit breaker open")
}

func (p *Protected) Create(ctx context.Context, name, project string, spec *diagramspec.Spec, opts CreateOptions) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.Create(ctx, name, project, spec, opts)
	p.recordResult("Create", time.Since(start), err)
	return d, err
}

func (p *Protected) Get(ctx context.Context, id string) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.Get(ctx, id)
	p.recordResult("Get", time.Since(start), err)
	return d, err
}

func (p *Protected) Update(ctx context.Context, id string, spec *diagramspec.Spec, message string, baseVersion *int64) (*Diagram, *Conflict, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, conflict, err := p.inner.Update(ctx, id, spec, message, baseVersion)
	p.recordResult("Update", time.Since(start), err)
	return d, conflict, err
}

func (p *Protected) ForceUpdate(ctx context.Context, id string, spec *diagramspec.Spec, message string) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.ForceUpdate(ctx, id, spec, message)
	p.recordResult("ForceUpdate", time.Since(start), err)
	return d, err
}

func (p *Protected) Transform(ctx context.Context, id string, fn func(*diagramspec.Spec) (*diagramspec.Spec, error), message string, maxRetries int) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.Transform(ctx, id, fn, message, maxRetries)
	p.recordResult("Transform", time.Since(start), err)
	return d, err
}

func (p *Protected) Delete(ctx context.Context, id string) (bool, error) {
	if ok, retryAfter := p.allow(); !ok {
		return false, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	ok, err := p.inner.Delete(ctx, id)
	p.recordResult("Delete", time.Since(start), err)
	return ok, err
}

func (p *Protected) List(ctx context.Context, project string) ([]Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.List(ctx, project)
	p.recordResult("List", time.Since(start), err)
	return d, err
}

func (p *Protected) ListPaginated(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	r, err := p.inner.ListPaginated(ctx, filter)
	p.recordResult("ListPaginated", time.Since(start), err)
	return r, err
}

func (p *Protected) ListForUser(ctx context.Context, userID *string, filter UserListFilter) (*ListResult, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	r, err := p.inner.ListForUser(ctx, userID, filter)
	p.recordResult("ListForUser", time.Since(start), err)
	return r, err
}

func (p *Protected) CreateVersion(ctx context.Context, diagramID string, spec *diagramspec.Spec, message string) (*Version, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, err := p.inner.CreateVersion(ctx, diagramID, spec, message)
	p.recordResult("CreateVersion", time.Since(start), err)
	return v, err
}

func (p *Protected) GetVersions(ctx context.Context, diagramID string) ([]Version, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, err := p.inner.GetVersions(ctx, diagramID)
	p.recordResult("GetVersions", time.Since(start), err)
	return v, err
}

func (p *Protected) GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]Version, int64, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, 0, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, total, err := p.inner.GetVersionsPaginated(ctx, diagramID, limit, offset)
	p.recordResult("GetVersionsPaginated", time.Since(start), err)
	return v, total, err
}

func (p *Protected) GetVersionsMetadata(ctx context.Context, diagramID string) ([]Version, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, err := p.inner.GetVersionsMetadata(ctx, diagramID)
	p.recordResult("GetVersionsMetadata", time.Since(start), err)
	return v, err
}

func (p *Protected) GetVersion(ctx context.Context, diagramID string, version int64) (*Version, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, err := p.inner.GetVersion(ctx, diagramID, version)
	p.recordResult("GetVersion", time.Since(start), err)
	return v, err
}

func (p *Protected) GetLatestVersion(ctx context.Context, diagramID string) (*Version, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	v, err := p.inner.GetLatestVersion(ctx, diagramID)
	p.recordResult("GetLatestVersion", time.Since(start), err)
	return v, err
}

func (p *Protected) RestoreVersion(ctx context.Context, diagramID string, version int64) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.RestoreVersion(ctx, diagramID, version)
	p.recordResult("RestoreVersion", time.Since(start), err)
	return d, err
}

func (p *Protected) Fork(ctx context.Context, id, newName, project string) (*Diagram, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	d, err := p.inner.Fork(ctx, id, newName, project)
	p.recordResult("Fork", time.Since(start), err)
	return d, err
}

func (p *Protected) UpdateOwner(ctx context.Context, id, ownerID string) error {
	if ok, retryAfter := p.allow(); !ok {
		return &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	err := p.inner.UpdateOwner(ctx, id, ownerID)
	p.recordResult("UpdateOwner", time.Since(start), err)
	return err
}

func (p *Protected) SetPublic(ctx context.Context, id string, isPublic bool) error {
	if ok, retryAfter := p.allow(); !ok {
		return &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	err := p.inner.SetPublic(ctx, id, isPublic)
	p.recordResult("SetPublic", time.Since(start), err)
	return err
}

func (p *Protected) UpdateShares(ctx context.Context, id string, shares []Share) (bool, error) {
	if ok, retryAfter := p.allow(); !ok {
		return false, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	ok, err := p.inner.UpdateShares(ctx, id, shares)
	p.recordResult("UpdateShares", time.Since(start), err)
	return ok, err
}

func (p *Protected) AddShare(ctx context.Context, id, userID, permission string) (bool, error) {
	if ok, retryAfter := p.allow(); !ok {
		return false, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	ok, err := p.inner.AddShare(ctx, id, userID, permission)
	p.recordResult("AddShare", time.Since(start), err)
	return ok, err
}

func (p *Protected) RemoveShare(ctx context.Context, id, userID string) (bool, error) {
	if ok, retryAfter := p.allow(); !ok {
		return false, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	ok, err := p.inner.RemoveShare(ctx, id, userID)
	p.recordResult("RemoveShare", time.Since(start), err)
	return ok, err
}

func (p *Protected) Stats(ctx context.Context) (*Stats, error) {
	if ok, retryAfter := p.allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: retryAfter}
	}
	start := time.Now()
	s, err := p.inner.Stats(ctx)
	p.recordResult("Stats", time.Since(start), err)
	return s, err
}

func (p *Protected) Close() error {
	return p.inner.Close()
}
