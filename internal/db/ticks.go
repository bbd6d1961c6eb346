package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FusionCounts tallies the fusion outcomes of one tick.
type FusionCounts struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Superseded int `json:"superseded"`
	Skipped    int `json:"skipped"`
}

// TickRecord summarises one control cycle.
type TickRecord struct {
	Seq       int64         `json:"seq"`
	At        time.Time     `json:"at"`
	Speed     float64       `json:"speed"`
	Points    int           `json:"points"`
	Blobs     int           `json:"blobs"`
	Occupants int           `json:"occupants"`
	Expired   int           `json:"expired"`
	Fusions   FusionCounts  `json:"fusions"`
	Strategy  string        `json:"strategy"`
	Throttle  float64       `json:"throttle"`
	Brake     float64       `json:"brake"`
	Steering  float64       `json:"steering"`
	Duration  time.Duration `json:"duration"`
}

// RecordTick inserts r. Sequence numbers are unique; re-recording a
// sequence number is an error.
func (db *DB) RecordTick(ctx context.Context, r TickRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tick %d: %w", r.Seq, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ticks (
			seq, at_unix_ns, speed, points, blobs, occupants, expired,
			strategy, throttle, brake, steering, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Seq, r.At.UnixNano(), r.Speed, r.Points, r.Blobs, r.Occupants, r.Expired,
		r.Strategy, r.Throttle, r.Brake, r.Steering, r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", r.Seq, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fusions (tick_seq, created, updated, superseded, skipped)
		VALUES (?, ?, ?, ?, ?)`,
		r.Seq, r.Fusions.Created, r.Fusions.Updated, r.Fusions.Superseded, r.Fusions.Skipped,
	)
	if err != nil {
		return fmt.Errorf("insert fusions for tick %d: %w", r.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick %d: %w", r.Seq, err)
	}
	return nil
}

// RecentTicks returns up to n of the most recent ticks in ascending
// sequence order.
func (db *DB) RecentTicks(ctx context.Context, n int) ([]TickRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT * FROM (
			SELECT t.seq, t.at_unix_ns, t.speed, t.points, t.blobs, t.occupants, t.expired,
				t.strategy, t.throttle, t.brake, t.steering, t.duration_ns,
				COALESCE(f.created, 0), COALESCE(f.updated, 0),
				COALESCE(f.superseded, 0), COALESCE(f.skipped, 0)
			FROM ticks t LEFT JOIN fusions f ON f.tick_seq = t.seq
			ORDER BY t.seq DESC
			LIMIT ?
		) ORDER BY seq ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		r, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent ticks: %w", err)
	}
	return out, nil
}

// StrategyCounts returns how many recorded ticks ran under each watchdog
// strategy.
func (db *DB) StrategyCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT strategy, COUNT(*) FROM ticks GROUP BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("query strategy counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan strategy count: %w", err)
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func scanTick(rows *sql.Rows) (TickRecord, error) {
	var r TickRecord
	var atNs, durNs int64
	err := rows.Scan(
		&r.Seq, &atNs, &r.Speed, &r.Points, &r.Blobs, &r.Occupants, &r.Expired,
		&r.Strategy, &r.Throttle, &r.Brake, &r.Steering, &durNs,
		&r.Fusions.Created, &r.Fusions.Updated, &r.Fusions.Superseded, &r.Fusions.Skipped,
	)
	if err != nil {
		return TickRecord{}, fmt.Errorf("scan tick: %w", err)
	}
	r.At = time.Unix(0, atNs).UTC()
	r.Duration = time.Duration(durNs)
	return r, nil
}
