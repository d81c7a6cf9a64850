package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/metrics"
	"github.com/use-agent/liveprice/models"
)

const (
	retireErrScore = 3.0
	resetTimeout   = 5 * time.Second
	createTimeout  = 30 * time.Second
)

// SessionHandle wraps a pooled Session with health tracking metadata.
type SessionHandle struct {
	ID      int64
	Session Session

	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func newSessionHandle(id int64, s Session) *SessionHandle {
	return &SessionHandle{
		ID:      id,
		Session: s,
		created: time.Now(),
	}
}

// RecordSuccess decreases the error score (min 0).
func (h *SessionHandle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *SessionHandle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire returns true if the session should be closed based on health metrics.
func (h *SessionHandle) ShouldRetire(cfg config.PoolConfig) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= retireErrScore {
		return true
	}
	if cfg.MaxUses > 0 && h.useCount >= cfg.MaxUses {
		return true
	}
	if cfg.MaxAge > 0 && time.Since(h.created) >= cfg.MaxAge {
		return true
	}
	return false
}

// Pool hands out at most cfg.Size sessions at a time. Waiters queue on
// a semaphore, so a session that is retired and fails to come back never
// strands them: the next Get opens a replacement itself.
type Pool struct {
	engine Engine
	cfg    config.PoolConfig

	sem  chan struct{}
	idle chan *SessionHandle

	mu      sync.Mutex
	all     map[int64]*SessionHandle
	nextID  atomic.Int64
	active  atomic.Int32
	retired atomic.Int64
	closed  atomic.Bool
}

// NewPool opens cfg.Size sessions up front. Any failure closes what was
// opened and is returned; the caller treats it as fatal.
func NewPool(ctx context.Context, eng Engine, cfg config.PoolConfig) (*Pool, error) {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	p := &Pool{
		engine: eng,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Size),
		idle:   make(chan *SessionHandle, cfg.Size),
		all:    make(map[int64]*SessionHandle),
	}

	for i := 0; i < cfg.Size; i++ {
		h, err := p.createHandle(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.idle <- h
	}
	p.publish()
	slog.Info("pool: sessions ready", "engine", eng.Name(), "size", cfg.Size)
	return p, nil
}

// Get checks out a session, blocking until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (*SessionHandle, error) {
	if p.closed.Load() {
		return nil, errPoolClosed
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
			"timed out waiting for a free session", ctx.Err())
	}

	if p.closed.Load() {
		<-p.sem
		return nil, errPoolClosed
	}

	var h *SessionHandle
	select {
	case h = <-p.idle:
	default:
		// A previous session was retired without replacement.
		var err error
		h, err = p.createHandle(ctx)
		if err != nil {
			<-p.sem
			return nil, err
		}
	}

	p.active.Add(1)
	p.publish()
	return h, nil
}

// Put returns a session after use. err is the outcome of the work done
// with it; it drives health scoring and retirement. The session is reset
// before another caller can see it.
func (p *Pool) Put(h *SessionHandle, err error) {
	if err == nil {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}
	p.checkIn(h, err)
}

// Release returns a session whose work was abandoned by the caller.
// The outcome says nothing about the session, so it is not scored.
func (p *Pool) Release(h *SessionHandle) {
	p.checkIn(h, nil)
}

func (p *Pool) checkIn(h *SessionHandle, err error) {
	defer func() {
		p.active.Add(-1)
		<-p.sem
		p.publish()
	}()

	if p.closed.Load() {
		p.destroyHandle(h)
		return
	}

	retire := h.ShouldRetire(p.cfg) || (err != nil && models.CodeOf(err) == models.ErrCodeConnectionFailed)
	if !retire {
		ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		resetErr := h.Session.Reset(ctx)
		cancel()
		if resetErr != nil {
			slog.Warn("pool: session reset failed", "id", h.ID, "error", resetErr)
			retire = true
		}
	}

	if retire {
		h.mu.Lock()
		slog.Debug("pool: retiring session", "id", h.ID,
			"errScore", h.errScore, "useCount", h.useCount, "error", err)
		h.mu.Unlock()
		p.destroyHandle(h)
		p.retired.Add(1)
		metrics.IncPoolRetired()

		ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
		newH, createErr := p.createHandle(ctx)
		cancel()
		if createErr != nil {
			slog.Warn("pool: failed to replace retired session", "error", createErr)
			return
		}
		p.returnIdle(newH)
		return
	}

	p.returnIdle(h)
}

// returnIdle parks h for the next Get. A Close that ran since the closed
// check above has already drained idle, so drain again.
func (p *Pool) returnIdle(h *SessionHandle) {
	p.idle <- h
	if p.closed.Load() {
		p.drainIdle()
	}
}

// Stats reports the pool's current state.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	live := len(p.all)
	p.mu.Unlock()
	return models.PoolStats{
		MaxSessions:    p.cfg.Size,
		LiveSessions:   live,
		ActiveSessions: int(p.active.Load()),
		Retired:        p.retired.Load(),
	}
}

// EngineName is the name of the backend the sessions come from.
func (p *Pool) EngineName() string {
	return p.engine.Name()
}

// Close closes every idle session and any session returned afterwards.
// It does not close the engine.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.drainIdle()
	p.publish()
}

func (p *Pool) drainIdle() {
	for {
		select {
		case h := <-p.idle:
			p.destroyHandle(h)
		default:
			return
		}
	}
}

var errPoolClosed = models.NewAutomationError(models.ErrCodeConnectionFailed, "session pool is closed", nil)

func (p *Pool) createHandle(ctx context.Context) (*SessionHandle, error) {
	s, err := p.engine.NewSession(ctx)
	if err != nil {
		var ae *models.AutomationError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, models.NewAutomationError(models.ErrCodeConnectionFailed, "failed to open session", err)
	}
	h := newSessionHandle(p.nextID.Add(1), s)
	p.mu.Lock()
	p.all[h.ID] = h
	p.mu.Unlock()
	return h, nil
}

// destroyHandle removes a handle from tracking and closes its session.
func (p *Pool) destroyHandle(h *SessionHandle) {
	p.mu.Lock()
	delete(p.all, h.ID)
	p.mu.Unlock()
	if err := h.Session.Close(); err != nil {
		slog.Debug("pool: session close failed", "id", h.ID, "error", err)
	}
}

func (p *Pool) publish() {
	s := p.Stats()
	metrics.SetPoolSessions(s.LiveSessions, s.ActiveSessions)
}
