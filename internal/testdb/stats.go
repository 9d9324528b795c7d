package testdb

import "time"

// PoolStats is a point-in-time snapshot of pool usage, exposed to test
// harness orchestration through the ops API and CLI.
type PoolStats struct {
	TotalConnections  int       `json:"total_connections"`
	ActiveConnections int       `json:"active_connections"`
	TotalUseCount     uint64    `json:"total_use_count"`
	AverageUseCount   float64   `json:"average_use_count"`
	OldestConnection  time.Time `json:"oldest_connection"`
}

// Stats returns a snapshot of current pool usage. OldestConnection is the
// zero time when the pool is empty.
func (p *ConnPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		TotalConnections: len(p.conns),
	}
	for _, entry := range p.conns {
		if entry.active {
			stats.ActiveConnections++
		}
		stats.TotalUseCount += entry.useCount
		if stats.OldestConnection.IsZero() || entry.createdAt.Before(stats.OldestConnection) {
			stats.OldestConnection = entry.createdAt
		}
	}
	if stats.TotalConnections > 0 {
		stats.AverageUseCount = float64(stats.TotalUseCount) / float64(stats.TotalConnections)
	}
	return stats
}
