// Package httppool provides a bounded HTTP connection pool for outbound
// fetches. Connections are tracked per origin, each connection multiplexes
// a limited number of concurrent streams, and acquisition waits are bounded
// so a slow upstream cannot pile up callers indefinitely.
package httppool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"bioterminal/internal/clock"
)

// ErrPoolTimeout is returned when no connection becomes available within
// the configured acquire timeout. It is distinct from a network timeout:
// the pool was exhausted, the upstream was never reached.
var ErrPoolTimeout = errors.New("connection pool acquire timed out")

// Reasons passed to the OnConnRemoved hook.
const (
	RemoveReasonIdle  = "idle"
	RemoveReasonError = "error"
)

// Config holds configuration for a Pool.
type Config struct {
	// MaxGlobal caps the total number of connections across all origins.
	// Default: 64.
	MaxGlobal int

	// MaxPerOrigin caps connections to a single origin. Default: 6.
	MaxPerOrigin int

	// MaxStreamsPerConn caps concurrent in-flight requests multiplexed
	// over one connection. Default: 4.
	MaxStreamsPerConn int

	// AcquireTimeout bounds how long Do waits for a free connection
	// before returning ErrPoolTimeout. Default: 10 seconds.
	AcquireTimeout time.Duration

	// IdleTimeout is how long an unused connection survives before the
	// sweeper closes it. Default: 90 seconds.
	IdleTimeout time.Duration

	// SweepInterval is how often idle connections are reaped.
	// Zero disables the sweeper.
	SweepInterval time.Duration

	// MaxValidatorEntries bounds the conditional request memory
	// (ETag / Last-Modified per URL). Default: 1000.
	MaxValidatorEntries int

	// LinkCacheTTL is how long a link validation verdict is trusted
	// before the URL is probed again. Default: 7 days.
	LinkCacheTTL time.Duration

	// MaxLinkEntries bounds the link validation memory. Default: 1000.
	MaxLinkEntries int

	// UserAgent is sent with every request. Default: "bioterminal/1.0".
	UserAgent string

	// Transport is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper

	// Clock is the time source. Defaults to the system clock.
	Clock clock.Clock

	// OnConnCreated, if set, is called after a new connection joins the
	// pool. It runs outside the pool lock.
	OnConnCreated func(origin, connID string)

	// OnConnRemoved, if set, is called after a connection leaves the
	// pool. It runs outside the pool lock.
	OnConnRemoved func(origin, connID, reason string)
}

// Response is the result of a pooled request with the body fully read.
type Response struct {
	StatusCode int
	Headers    http.Header

	// Body is the full response body. Empty when NotModified is true.
	Body []byte

	// NotModified is true when the upstream answered 304 to a
	// conditional request; the caller should reuse its cached copy.
	NotModified bool
}

// conn is one pooled connection. Stream accounting is guarded by the
// pool mutex.
type conn struct {
	id            string
	origin        string
	createdAt     time.Time
	lastUsed      time.Time
	activeStreams int
	totalRequests int64
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	TotalConns    int
	ActiveStreams int
	PerOrigin     map[string]int
	TotalRequests int64
	Timeouts      int64
	ConnsCreated  int64
	ConnsRemoved  int64
}

// Pool is a bounded per-origin connection pool. All methods are safe for
// concurrent use.
type Pool struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	origins    map[string][]*conn
	totalConns int
	validators map[string]*validatorEntry
	links      map[string]*linkEntry

	totalRequests int64
	timeouts      int64
	connsCreated  int64
	connsRemoved  int64

	// releaseCh carries a wake-up signal whenever a stream slot frees.
	releaseCh chan struct{}

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates a pool from cfg and starts the idle sweeper when
// SweepInterval is set. Call Close to stop the sweeper.
func New(cfg Config) *Pool {
	if cfg.MaxGlobal <= 0 {
		cfg.MaxGlobal = 64
	}
	if cfg.MaxPerOrigin <= 0 {
		cfg.MaxPerOrigin = 6
	}
	if cfg.MaxStreamsPerConn <= 0 {
		cfg.MaxStreamsPerConn = 4
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 90 * time.Second
	}
	if cfg.MaxValidatorEntries <= 0 {
		cfg.MaxValidatorEntries = 1000
	}
	if cfg.LinkCacheTTL <= 0 {
		cfg.LinkCacheTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxLinkEntries <= 0 {
		cfg.MaxLinkEntries = 1000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bioterminal/1.0"
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	p := &Pool{
		cfg:        cfg,
		client:     &http.Client{Transport: cfg.Transport},
		origins:    make(map[string][]*conn),
		validators: make(map[string]*validatorEntry),
		links:      make(map[string]*linkEntry),
		releaseCh:  make(chan struct{}, 1),
		stopSweep:  make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go p.sweepLoop()
	}
	return p
}

// Get performs a pooled GET against rawURL. Conditional request headers
// are added automatically when validators for the URL are remembered.
func (p *Pool) Get(ctx context.Context, rawURL string) (*Response, error) {
	return p.Do(ctx, http.MethodGet, rawURL, nil)
}

// Do performs a pooled request. It blocks until a connection stream is
// available, the acquire timeout elapses (ErrPoolTimeout), or the context
// is done. Transport-level failures remove the connection from the pool.
func (p *Pool) Do(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	origin, err := originOf(rawURL)
	if err != nil {
		return nil, err
	}

	c, err := p.acquire(ctx, origin)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		p.release(c, true)
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	p.applyValidators(req, rawURL)

	resp, err := p.client.Do(req)
	if err != nil {
		// The transport failed underneath this connection. Drop it so
		// the next caller gets a fresh one.
		p.release(c, false)
		p.remove(c, RemoveReasonError)
		return nil, fmt.Errorf("pooled request to %s: %w", origin, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	p.release(c, true)
	if readErr != nil {
		p.remove(c, RemoveReasonError)
		return nil, fmt.Errorf("reading response from %s: %w", origin, readErr)
	}

	if resp.StatusCode == http.StatusNotModified {
		return &Response{
			StatusCode:  resp.StatusCode,
			Headers:     resp.Header,
			NotModified: true,
		}, nil
	}

	if resp.StatusCode == http.StatusOK {
		p.rememberValidators(rawURL, resp.Header)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// acquire returns a connection with a free stream slot for origin,
// creating one when capacity allows.
func (p *Pool) acquire(ctx context.Context, origin string) (*conn, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	deadlineHit := false
	for {
		p.mu.Lock()

		if c := p.pickLocked(origin); c != nil {
			c.activeStreams++
			c.totalRequests++
			p.totalRequests++
			p.mu.Unlock()
			return c, nil
		}

		if p.canCreateLocked(origin) {
			now := p.cfg.Clock.Now()
			c := &conn{
				id:            uuid.NewString(),
				origin:        origin,
				createdAt:     now,
				lastUsed:      now,
				activeStreams: 1,
				totalRequests: 1,
			}
			p.origins[origin] = append(p.origins[origin], c)
			p.totalConns++
			p.totalRequests++
			p.connsCreated++
			p.mu.Unlock()

			slog.Debug("pool connection created",
				slog.String("origin", origin),
				slog.String("conn_id", c.id))
			if p.cfg.OnConnCreated != nil {
				p.cfg.OnConnCreated(origin, c.id)
			}
			return c, nil
		}

		p.mu.Unlock()

		if deadlineHit {
			p.mu.Lock()
			p.timeouts++
			p.mu.Unlock()
			return nil, fmt.Errorf("acquiring connection to %s: %w", origin, ErrPoolTimeout)
		}

		select {
		case <-p.releaseCh:
			// A slot freed somewhere; retry.
		case <-timer.C:
			// releaseCh coalesces signals, so a wakeup meant for this
			// waiter may have been absorbed by another. Check for a
			// free slot once more before counting a timeout.
			deadlineHit = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pickLocked returns the least loaded connection to origin with a free
// stream slot, or nil. Callers must hold p.mu.
func (p *Pool) pickLocked(origin string) *conn {
	var best *conn
	for _, c := range p.origins[origin] {
		if c.activeStreams >= p.cfg.MaxStreamsPerConn {
			continue
		}
		if best == nil || c.activeStreams < best.activeStreams {
			best = c
		}
	}
	return best
}

// canCreateLocked reports whether a new connection to origin fits under
// both the global and per-origin caps. Callers must hold p.mu.
func (p *Pool) canCreateLocked(origin string) bool {
	return p.totalConns < p.cfg.MaxGlobal && len(p.origins[origin]) < p.cfg.MaxPerOrigin
}

// release frees a stream slot and wakes one waiter. touch updates the
// idle timestamp; pass false when the connection is about to be removed.
func (p *Pool) release(c *conn, touch bool) {
	p.mu.Lock()
	if c.activeStreams > 0 {
		c.activeStreams--
	}
	if touch {
		c.lastUsed = p.cfg.Clock.Now()
	}
	p.mu.Unlock()

	select {
	case p.releaseCh <- struct{}{}:
	default:
	}
}

// remove drops a connection from the pool.
func (p *Pool) remove(c *conn, reason string) {
	p.mu.Lock()
	conns := p.origins[c.origin]
	found := false
	for i, cand := range conns {
		if cand == c {
			p.origins[c.origin] = append(conns[:i], conns[i+1:]...)
			found = true
			break
		}
	}
	if found {
		p.totalConns--
		p.connsRemoved++
		if len(p.origins[c.origin]) == 0 {
			delete(p.origins, c.origin)
		}
	}
	p.mu.Unlock()

	if !found {
		return
	}

	slog.Debug("pool connection removed",
		slog.String("origin", c.origin),
		slog.String("conn_id", c.id),
		slog.String("reason", reason))
	if p.cfg.OnConnRemoved != nil {
		p.cfg.OnConnRemoved(c.origin, c.id, reason)
	}

	select {
	case p.releaseCh <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of pool state and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	perOrigin := make(map[string]int, len(p.origins))
	active := 0
	for origin, conns := range p.origins {
		perOrigin[origin] = len(conns)
		for _, c := range conns {
			active += c.activeStreams
		}
	}
	return Stats{
		TotalConns:    p.totalConns,
		ActiveStreams: active,
		PerOrigin:     perOrigin,
		TotalRequests: p.totalRequests,
		Timeouts:      p.timeouts,
		ConnsCreated:  p.connsCreated,
		ConnsRemoved:  p.connsRemoved,
	}
}

// Close stops the idle sweeper. The pool remains usable.
func (p *Pool) Close() {
	p.sweepOnce.Do(func() { close(p.stopSweep) })
}

// sweepLoop reaps idle connections on a fixed interval.
func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.stopSweep:
			return
		}
	}
}

// sweepIdle removes connections that have been idle past IdleTimeout.
// It returns the number removed.
func (p *Pool) sweepIdle() int {
	cutoff := p.cfg.Clock.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var idle []*conn
	for _, conns := range p.origins {
		for _, c := range conns {
			if c.activeStreams == 0 && c.lastUsed.Before(cutoff) {
				idle = append(idle, c)
			}
		}
	}
	p.mu.Unlock()

	for _, c := range idle {
		p.remove(c, RemoveReasonIdle)
	}
	return len(idle)
}

// originOf extracts the scheme://host origin from a URL.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no origin", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
