package testdb

import (
	"context"
	"fmt"
)

// Table identifies one of the application tables subject to cleanup. The
// set is closed: the wipe order below is a hand-maintained topological sort
// of the referential graph, and adding a table means placing it correctly
// in both the sequential order and the parallel batches.
type Table string

const (
	TableAuditLogs     Table = "audit_logs"
	TableMessages      Table = "messages"
	TableNotifications Table = "notifications"
	TablePayments      Table = "payments"
	TableBookings      Table = "bookings"
	TableTimeSlots     Table = "time_slots"
	TableDiscounts     Table = "discounts"
	TableOfferings     Table = "offerings"
	TableAccounts      Table = "accounts"
)

// DeleteAll removes every row from the table. Returns the number of rows
// deleted.
func (t Table) DeleteAll(ctx context.Context, db DBTX) (int64, error) {
	res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows from %s: %w", t, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		// The delete itself succeeded; treat an unavailable count as zero
		return 0, nil
	}
	return rows, nil
}

// wipeOrder deletes children before parents: log-style leaf tables first,
// then payments (references bookings and accounts), then bookings
// (references accounts, time slots, offerings), then the tables that
// reference only accounts, and the root accounts table last.
var wipeOrder = []Table{
	TableAuditLogs,
	TableMessages,
	TableNotifications,
	TablePayments,
	TableBookings,
	TableTimeSlots,
	TableDiscounts,
	TableOfferings,
	TableAccounts,
}

// wipeBatches groups wipeOrder into layers with no foreign-key edges inside
// a layer, so deletions within one batch may run concurrently. Batches
// themselves always run strictly in sequence. Flattening the batches must
// yield exactly wipeOrder.
var wipeBatches = [][]Table{
	{TableAuditLogs, TableMessages, TableNotifications},
	{TablePayments},
	{TableBookings},
	{TableTimeSlots, TableDiscounts, TableOfferings},
	{TableAccounts},
}

// WipeOrder returns a copy of the sequential deletion order.
func WipeOrder() []Table {
	out := make([]Table, len(wipeOrder))
	copy(out, wipeOrder)
	return out
}
