package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Scope marks a stretch of test activity on a suite's database that should
// leave no rows behind. Closing a scope does not roll anything back: it
// wipes every table back to a clean slate, which is only safe because each
// suite owns its database outright. Use RunInTransaction when real
// atomicity within a scope is needed.
type Scope struct {
	id    string
	suite string
	m     *Manager
}

// ID returns the scope's identifier, useful for correlating log lines.
func (s *Scope) ID() string {
	return s.id
}

// BeginScope registers a new scope on the suite's database. The suite must
// already have a usable database; otherwise ErrNoActiveDatabase is
// returned.
func (m *Manager) BeginScope(suiteName string) (*Scope, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	entry, ok := m.suites[suiteName]
	if ok {
		select {
		case <-entry.ready:
		default:
			ok = false
		}
	}
	if !ok || entry.db == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoActiveDatabase, suiteName)
	}
	s := &Scope{
		id:    uuid.New().String(),
		suite: suiteName,
		m:     m,
	}
	m.scopes[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("scope opened",
		slog.String("suite", suiteName),
		slog.String("scope_id", s.id))
	return s, nil
}

// Close forgets the scope and wipes the suite's database back to a clean
// slate. It returns ErrNoActiveScope when the scope was already closed or
// was invalidated by the suite's teardown. When the wipe itself fails the
// database state is unknown; tear the suite down rather than retrying.
func (s *Scope) Close(ctx context.Context) error {
	m := s.m

	m.mu.Lock()
	if _, ok := m.scopes[s.id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: scope %s on suite %q", ErrNoActiveScope, s.id, s.suite)
	}
	delete(m.scopes, s.id)
	m.mu.Unlock()

	conn, err := m.Conn(ctx, s.suite)
	if err != nil {
		return err
	}
	if err := m.cleaner.Wipe(ctx, conn, WipeOptions{Parallel: true}); err != nil {
		return err
	}

	m.logger.Debug("scope closed",
		slog.String("suite", s.suite),
		slog.String("scope_id", s.id))
	return nil
}

// WithScope runs fn against the suite's pooled connection inside a scope,
// wiping the database afterward even when fn fails. An error from fn takes
// precedence over a wipe error.
func (m *Manager) WithScope(ctx context.Context, suiteName string, fn func(ctx context.Context, db *sql.DB) error) error {
	scope, err := m.BeginScope(suiteName)
	if err != nil {
		return err
	}

	conn, err := m.Conn(ctx, suiteName)
	if err != nil {
		if closeErr := scope.Close(ctx); closeErr != nil {
			m.logger.Warn("failed to close scope after connection failure",
				slog.String("suite", suiteName),
				slog.String("scope_id", scope.id),
				slog.String("error", closeErr.Error()))
		}
		return err
	}

	fnErr := fn(ctx, conn)
	closeErr := scope.Close(ctx)
	if fnErr != nil {
		if closeErr != nil {
			m.logger.Warn("scope wipe failed after callback error",
				slog.String("suite", suiteName),
				slog.String("scope_id", scope.id),
				slog.String("error", closeErr.Error()))
		}
		return fnErr
	}
	return closeErr
}
