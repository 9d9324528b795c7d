package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coachmate/coachmate-api/internal/config"

	// Import pgx driver for database/sql
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pooledConn is one live handle to one database URL.
type pooledConn struct {
	url        string
	db         *sql.DB
	createdAt  time.Time
	lastUsedAt time.Time
	useCount   uint64
	// active is cleared the instant teardown begins, before the handle is
	// closed. An entry with active == false is already unlinked from the
	// pool map and must never be returned to a caller.
	active bool
}

// touch marks the entry as just used.
func (pc *pooledConn) touch() {
	pc.lastUsedAt = time.Now()
	pc.useCount++
}

// ConnPool hands out database handles keyed by connection URL, keeping at
// most MaxConnections live at once and reclaiming idle ones automatically.
// It is scoped to disposable per-suite test databases with aggressive idle
// eviction, not general-purpose production pooling.
type ConnPool struct {
	mu    sync.Mutex
	conns map[string]*pooledConn

	maxConnections int
	idleTimeout    time.Duration
	connectTimeout time.Duration
	sweepInterval  time.Duration

	closed bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	logger *slog.Logger
}

// PoolOverrides carries optional runtime overrides for pool tuning. Nil
// fields leave the current value unchanged.
type PoolOverrides struct {
	MaxConnections *int
	IdleTimeout    *time.Duration
	ConnectTimeout *time.Duration
}

// NewConnPool creates a ConnPool with the given tuning. Zero config fields
// fall back to the package defaults (10 connections, 30s idle timeout, 10s
// connect timeout, 30s sweep interval).
// If logger is nil, a default logger will be used.
func NewConnPool(cfg config.PoolConfig, logger *slog.Logger) *ConnPool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConnPool{
		conns:          make(map[string]*pooledConn),
		maxConnections: cfg.MaxConnections,
		idleTimeout:    cfg.IdleTimeout,
		connectTimeout: cfg.ConnectTimeout,
		sweepInterval:  cfg.SweepInterval,
		ctx:            ctx,
		cancelFunc:     cancel,
		logger:         logger.With(slog.String("component", "conn_pool")),
	}
}

// Acquire returns the pooled handle for url, opening a new one on first
// use. A repeat call for a pooled URL returns the same handle and bumps its
// use counters. When the pool is full, an idle sweep runs first; if the
// pool is still full the call fails with a *CapacityError rather than
// evicting a fresh entry.
//
// The pool lock is held across the dial so two concurrent acquires for the
// same URL share one connection attempt and the capacity check cannot race.
func (p *ConnPool) Acquire(ctx context.Context, url string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if entry, ok := p.conns[url]; ok && entry.active {
		entry.touch()
		p.logger.Debug("reusing pooled connection",
			slog.String("url", MaskDSN(url)),
			slog.Uint64("use_count", entry.useCount))
		return entry.db, nil
	}

	if len(p.conns) >= p.maxConnections {
		evicted := p.sweepIdleLocked()
		if evicted > 0 {
			p.logger.Debug("swept idle connections under capacity pressure",
				slog.Int("evicted", evicted))
		}
		if len(p.conns) >= p.maxConnections {
			return nil, &CapacityError{
				URL:     url,
				Current: len(p.conns),
				Max:     p.maxConnections,
			}
		}
	}

	db, err := p.dial(ctx, url)
	if err != nil {
		// Failed attempts are never added to the pool
		return nil, err
	}

	now := time.Now()
	p.conns[url] = &pooledConn{
		url:        url,
		db:         db,
		createdAt:  now,
		lastUsedAt: now,
		useCount:   1,
		active:     true,
	}

	p.logger.Info("pooled new connection",
		slog.String("url", MaskDSN(url)),
		slog.Int("pool_size", len(p.conns)))
	return db, nil
}

// dial opens and verifies a handle for url. Called with the pool lock held.
func (p *ConnPool) dial(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to %s: %w", MaskDSN(url), err)
	}

	// Per-handle limits, small because each handle serves a single suite's
	// test database.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// The deadline does not cancel a late-arriving connection, so the
		// failure path always closes the handle to avoid leaking it.
		if closeErr := db.Close(); closeErr != nil {
			p.logger.Warn("failed to close connection after failed dial",
				slog.String("url", MaskDSN(url)),
				slog.String("error", closeErr.Error()))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrConnectTimeout, p.connectTimeout, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", MaskDSN(url), err)
	}

	return db, nil
}

// Release marks the entry for url as recently used. It is advisory only:
// nothing is closed and nothing is evicted, the entry just becomes the
// least likely candidate for the next idle sweep.
func (p *ConnPool) Release(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.conns[url]; ok && entry.active {
		entry.lastUsedAt = time.Now()
	}
}

// Remove hard-tears-down the entry for url. The entry is deactivated and
// unlinked from the pool before any close I/O happens, so a concurrent
// Acquire issued after Remove starts never observes a half-closed handle.
// Removing an unknown URL is a no-op; close errors are logged and
// swallowed because the connection may already be gone.
func (p *ConnPool) Remove(url string) {
	p.mu.Lock()
	entry, ok := p.conns[url]
	if !ok {
		p.mu.Unlock()
		return
	}
	entry.active = false
	delete(p.conns, url)
	p.mu.Unlock()

	p.closeEntry(entry)
}

// closeEntry closes a handle that is already unlinked from the pool.
func (p *ConnPool) closeEntry(entry *pooledConn) {
	if err := entry.db.Close(); err != nil {
		p.logger.Warn("failed to close pooled connection",
			slog.String("url", MaskDSN(entry.url)),
			slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("closed pooled connection",
		slog.String("url", MaskDSN(entry.url)),
		slog.Uint64("use_count", entry.useCount))
}

// SweepIdle removes every entry idle past the configured idle timeout and
// returns the number removed. It runs on a fixed interval once Start is
// called, and synchronously inside Acquire when the pool is at capacity.
func (p *ConnPool) SweepIdle() int {
	p.mu.Lock()
	expired := p.unlinkIdleLocked()
	p.mu.Unlock()

	for _, entry := range expired {
		p.closeEntry(entry)
	}
	return len(expired)
}

// sweepIdleLocked evicts idle entries while the caller already holds the
// pool lock. Close I/O still happens after unlinking, preserving the
// remove-before-close ordering.
func (p *ConnPool) sweepIdleLocked() int {
	expired := p.unlinkIdleLocked()
	for _, entry := range expired {
		p.closeEntry(entry)
	}
	return len(expired)
}

// unlinkIdleLocked deactivates and unlinks every idle-expired entry,
// returning them for closing. Caller must hold the pool lock.
func (p *ConnPool) unlinkIdleLocked() []*pooledConn {
	now := time.Now()
	var expired []*pooledConn
	for url, entry := range p.conns {
		if now.Sub(entry.lastUsedAt) > p.idleTimeout {
			entry.active = false
			delete(p.conns, url)
			expired = append(expired, entry)
		}
	}
	return expired
}

// DrainAll removes every pooled entry. Used at process shutdown.
func (p *ConnPool) DrainAll() {
	p.mu.Lock()
	entries := make([]*pooledConn, 0, len(p.conns))
	for url, entry := range p.conns {
		entry.active = false
		delete(p.conns, url)
		entries = append(entries, entry)
	}
	p.mu.Unlock()

	for _, entry := range entries {
		p.closeEntry(entry)
	}

	if len(entries) > 0 {
		p.logger.Info("drained connection pool", slog.Int("count", len(entries)))
	}
}

// Reconfigure applies runtime overrides to the pool tuning. Only non-nil
// fields change; existing entries are not re-evaluated until the next sweep
// or acquire.
func (p *ConnPool) Reconfigure(overrides PoolOverrides) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if overrides.MaxConnections != nil && *overrides.MaxConnections > 0 {
		p.maxConnections = *overrides.MaxConnections
	}
	if overrides.IdleTimeout != nil && *overrides.IdleTimeout > 0 {
		p.idleTimeout = *overrides.IdleTimeout
	}
	if overrides.ConnectTimeout != nil && *overrides.ConnectTimeout > 0 {
		p.connectTimeout = *overrides.ConnectTimeout
	}
}

// Start launches the background idle sweeper. The sweeper wakes every
// sweep interval, evicts idle entries, and exits when Stop or Close is
// called; it never keeps the process alive on its own.
func (p *ConnPool) Start() {
	p.wg.Add(1)
	go p.sweepLoop()
}

func (p *ConnPool) sweepLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if n := p.SweepIdle(); n > 0 {
				p.logger.Debug("background sweep evicted idle connections",
					slog.Int("count", n))
			}
		}
	}
}

// Stop cancels the background sweeper and waits for it to exit.
func (p *ConnPool) Stop() {
	p.cancelFunc()
	p.wg.Wait()
}

// Close stops the sweeper, marks the pool closed so subsequent Acquire
// calls fail with ErrPoolClosed, and drains every entry.
func (p *ConnPool) Close() {
	p.Stop()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.DrainAll()
}
