package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Seeder inserts a small baseline dataset into freshly provisioned test
// databases. Seeding is best-effort: an individual insert failure is logged
// and skipped rather than failing provisioning, with one exception. When a
// profile includes dependent rows and not a single coach account could be
// inserted, there is no parent to attach the catalog to and seeding fails
// with ErrSeeding.
type Seeder struct {
	logger *slog.Logger
}

// NewSeeder creates a Seeder.
// If logger is nil, a default logger will be used.
func NewSeeder(logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{logger: logger.With(slog.String("component", "seeder"))}
}

// Seed populates db according to the database type profile. Unit databases
// get a coach and a client account only. Integration databases add the
// coach's catalog: offerings, time slots and a discount. E2E databases add
// confirmed bookings with payments on top, each booking and its payment
// inserted in one transaction so no half-booked state is left behind.
func (s *Seeder) Seed(ctx context.Context, db *sql.DB, dbType DatabaseType) error {
	startTime := time.Now()
	log := s.logger.With(slog.String("database_type", string(dbType)))

	inserted := 0
	skipped := 0
	exec := func(label, query string, args ...any) bool {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			skipped++
			log.Warn("skipping seed row",
				slog.String("row", label),
				slog.String("error", err.Error()))
			return false
		}
		inserted++
		return true
	}

	coachID := uuid.New()
	clientID := uuid.New()
	haveCoach := exec("coach account",
		`INSERT INTO accounts (id, email, display_name, role) VALUES ($1, $2, $3, 'coach')`,
		coachID, "coach@seed.coachmate.test", "Seed Coach")
	haveClient := exec("client account",
		`INSERT INTO accounts (id, email, display_name, role) VALUES ($1, $2, $3, 'client')`,
		clientID, "client@seed.coachmate.test", "Seed Client")

	if dbType == TypeUnit {
		log.Info("seed completed",
			slog.Int("inserted", inserted),
			slog.Int("skipped", skipped),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
		return nil
	}

	if !haveCoach {
		return newError("seed", "no coach account available for dependent rows",
			map[string]any{"database_type": string(dbType)},
			fmt.Errorf("%w: coach account insert failed", ErrSeeding))
	}

	type offering struct {
		id         uuid.UUID
		priceCents int
	}
	var offerings []offering
	for _, o := range []struct {
		title      string
		minutes    int
		priceCents int
	}{
		{"Intro Session", 30, 5000},
		{"Deep Dive", 60, 12000},
	} {
		id := uuid.New()
		if exec("offering",
			`INSERT INTO offerings (id, account_id, title, duration_minutes, price_cents) VALUES ($1, $2, $3, $4, $5)`,
			id, coachID, o.title, o.minutes, o.priceCents) {
			offerings = append(offerings, offering{id: id, priceCents: o.priceCents})
		}
	}

	var slotIDs []uuid.UUID
	base := time.Now().UTC().Truncate(time.Hour)
	for day := 1; day <= 3; day++ {
		id := uuid.New()
		startsAt := base.Add(time.Duration(day) * 24 * time.Hour)
		if exec("time slot",
			`INSERT INTO time_slots (id, account_id, starts_at, ends_at) VALUES ($1, $2, $3, $4)`,
			id, coachID, startsAt, startsAt.Add(time.Hour)) {
			slotIDs = append(slotIDs, id)
		}
	}

	exec("discount",
		`INSERT INTO discounts (id, account_id, code, percent_off) VALUES ($1, $2, $3, $4)`,
		uuid.New(), coachID, "WELCOME10", 10)

	if dbType == TypeE2E {
		if !haveClient || len(offerings) == 0 || len(slotIDs) == 0 {
			log.Warn("skipping booking seeds, prerequisite rows missing",
				slog.Bool("have_client", haveClient),
				slog.Int("offerings", len(offerings)),
				slog.Int("time_slots", len(slotIDs)))
		} else {
			pairs := len(offerings)
			if len(slotIDs) < pairs {
				pairs = len(slotIDs)
			}
			for i := 0; i < pairs; i++ {
				bookingID := uuid.New()
				o := offerings[i]
				slotID := slotIDs[i]
				err := RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO bookings (id, offering_id, time_slot_id, client_id, status) VALUES ($1, $2, $3, $4, 'confirmed')`,
						bookingID, o.id, slotID, clientID); err != nil {
						return fmt.Errorf("failed to insert booking: %w", err)
					}
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO payments (id, booking_id, account_id, amount_cents, status) VALUES ($1, $2, $3, $4, 'captured')`,
						uuid.New(), bookingID, clientID, o.priceCents); err != nil {
						return fmt.Errorf("failed to insert payment: %w", err)
					}
					return nil
				})
				if err != nil {
					skipped += 2
					log.Warn("skipping booking seed",
						slog.String("booking_id", bookingID.String()),
						slog.String("error", err.Error()))
					continue
				}
				inserted += 2
			}
		}
	}

	log.Info("seed completed",
		slog.Int("inserted", inserted),
		slog.Int("skipped", skipped),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	return nil
}
