package energy

import (
	"context"
	"fmt"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/database"
)

// SQLiteStore persists accumulator state in the bridge database.
//
// Three tables carry the state: energy_totals for running totals,
// energy_devices for tracking markers and energy_buckets for retained
// hourly readings. A database from before bucket tracking existed has
// totals but no device rows; Load surfaces that as untracked devices,
// which the accumulator re-baselines without touching the totals.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store over an open bridge database. The
// schema is created by the embedded migrations.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads the full persisted state.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	state := NewState()

	rows, err := s.db.QueryContext(ctx, "SELECT device_id, total_kwh FROM energy_totals")
	if err != nil {
		return State{}, fmt.Errorf("querying totals: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	for rows.Next() {
		var id string
		var total float64
		if err := rows.Scan(&id, &total); err != nil {
			return State{}, fmt.Errorf("scanning total: %w", err)
		}
		state.Totals[id] = total
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("iterating totals: %w", err)
	}

	devRows, err := s.db.QueryContext(ctx, "SELECT device_id, first_seen FROM energy_devices")
	if err != nil {
		return State{}, fmt.Errorf("querying tracked devices: %w", err)
	}
	defer devRows.Close() //nolint:errcheck // Read-only cursor

	for devRows.Next() {
		var id, firstSeen string
		if err := devRows.Scan(&id, &firstSeen); err != nil {
			return State{}, fmt.Errorf("scanning tracked device: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, firstSeen)
		if err != nil {
			return State{}, fmt.Errorf("parsing first_seen for %s: %w", id, err)
		}
		state.Tracked[id] = ts
	}
	if err := devRows.Err(); err != nil {
		return State{}, fmt.Errorf("iterating tracked devices: %w", err)
	}

	bucketRows, err := s.db.QueryContext(ctx, "SELECT device_id, bucket, kwh FROM energy_buckets")
	if err != nil {
		return State{}, fmt.Errorf("querying buckets: %w", err)
	}
	defer bucketRows.Close() //nolint:errcheck // Read-only cursor

	for bucketRows.Next() {
		var id, bucket string
		var kwh float64
		if err := bucketRows.Scan(&id, &bucket, &kwh); err != nil {
			return State{}, fmt.Errorf("scanning bucket: %w", err)
		}
		if state.Buckets[id] == nil {
			state.Buckets[id] = make(map[string]float64)
		}
		state.Buckets[id][bucket] = kwh
	}
	if err := bucketRows.Err(); err != nil {
		return State{}, fmt.Errorf("iterating buckets: %w", err)
	}

	return state, nil
}

// Save writes the full state in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	now := time.Now().UTC().Format(time.RFC3339)
	for id, total := range state.Totals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO energy_totals (device_id, total_kwh, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(device_id) DO UPDATE SET total_kwh = excluded.total_kwh, updated_at = excluded.updated_at`,
			id, total, now,
		)
		if err != nil {
			return fmt.Errorf("upserting total for %s: %w", id, err)
		}
	}

	for id, firstSeen := range state.Tracked {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO energy_devices (device_id, first_seen) VALUES (?, ?)
			 ON CONFLICT(device_id) DO NOTHING`,
			id, firstSeen.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("upserting tracking marker for %s: %w", id, err)
		}
	}

	// Buckets are replaced wholesale; pruning happens in memory and the
	// table mirrors it.
	if _, err := tx.ExecContext(ctx, "DELETE FROM energy_buckets"); err != nil {
		return fmt.Errorf("clearing buckets: %w", err)
	}
	for id, records := range state.Buckets {
		for bucket, kwh := range records {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO energy_buckets (device_id, bucket, kwh) VALUES (?, ?, ?)",
				id, bucket, kwh,
			)
			if err != nil {
				return fmt.Errorf("inserting bucket for %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing energy state: %w", err)
	}
	return nil
}
