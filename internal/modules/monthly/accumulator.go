// Package monthly maintains the per-position cumulative gain/loss for
// the current calendar month, advanced by at most one daily delta per
// calendar day regardless of how often prices refresh.
package monthly

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"monpecule/internal/database"
)

// Row is one (position, month) accumulator cell. Cumulative is in the
// reference currency.
type Row struct {
	PositionID int64   `json:"position_id"`
	Month      string  `json:"month"` // YYYY-MM
	Cumulative float64 `json:"cumulative"`
	LastDay    string  `json:"last_day"` // YYYY-MM-DD of the last applied delta
}

// MonthKey formats a time as an accumulator month key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// DayKey formats a time as an accumulator day key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Accumulator applies daily gain/loss deltas with a day-key guard.
type Accumulator struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccumulator creates a monthly accumulator.
func NewAccumulator(db *sql.DB, log zerolog.Logger) *Accumulator {
	return &Accumulator{
		db:  db,
		log: log.With().Str("service", "monthly").Logger(),
	}
}

// Accumulate adds one day's gain/loss to the (position, month) cell.
//
// The read-then-conditional-write runs inside a single transaction: it
// is the one place in the system where last-write-wins is not enough,
// because concurrent refresh triggers could otherwise double-count the
// same calendar day. If the stored last day equals dayKey, nothing is
// applied.
func (a *Accumulator) Accumulate(positionID int64, monthKey, dayKey string, dayGain float64) error {
	return database.WithTransaction(a.db, func(tx *sql.Tx) error {
		var cumulative float64
		var lastDay string
		err := tx.QueryRow(`SELECT cumulative, last_day FROM monthly_gains
			WHERE position_id = ? AND month = ?`, positionID, monthKey).
			Scan(&cumulative, &lastDay)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(`INSERT INTO monthly_gains (position_id, month, cumulative, last_day)
				VALUES (?, ?, ?, ?)`, positionID, monthKey, dayGain, dayKey)
			if err != nil {
				return fmt.Errorf("failed to insert monthly row: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("failed to read monthly row: %w", err)
		}

		if lastDay == dayKey {
			// Already accumulated today
			return nil
		}

		_, err = tx.Exec(`UPDATE monthly_gains SET cumulative = ?, last_day = ?
			WHERE position_id = ? AND month = ?`,
			cumulative+dayGain, dayKey, positionID, monthKey)
		if err != nil {
			return fmt.Errorf("failed to update monthly row: %w", err)
		}
		return nil
	})
}

// Seed creates a zeroed cell for a new position in the given month.
// Existing cells are left alone.
func (a *Accumulator) Seed(positionID int64, monthKey string) error {
	_, err := a.db.Exec(`INSERT OR IGNORE INTO monthly_gains (position_id, month, cumulative, last_day)
		VALUES (?, ?, 0, '')`, positionID, monthKey)
	if err != nil {
		return fmt.Errorf("failed to seed monthly row for position %d: %w", positionID, err)
	}
	return nil
}

// Reset deletes and recreates zeroed cells for the given month for every
// known position. Intended to run once per calendar month boundary; safe
// to re-run within the same month (re-zeroes), and it never carries any
// balance forward.
func (a *Accumulator) Reset(monthKey string) (int64, error) {
	var seeded int64
	err := database.WithTransaction(a.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM monthly_gains WHERE month = ?`, monthKey); err != nil {
			return fmt.Errorf("failed to clear monthly rows: %w", err)
		}

		result, err := tx.Exec(`INSERT INTO monthly_gains (position_id, month, cumulative, last_day)
			SELECT id, ?, 0, '' FROM positions`, monthKey)
		if err != nil {
			return fmt.Errorf("failed to seed monthly rows: %w", err)
		}

		seeded, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	a.log.Info().Str("month", monthKey).Int64("positions", seeded).Msg("Monthly accumulator reset")
	return seeded, nil
}

// Get returns the cell for one position and month, nil when absent.
func (a *Accumulator) Get(positionID int64, monthKey string) (*Row, error) {
	var row Row
	err := a.db.QueryRow(`SELECT position_id, month, cumulative, last_day
		FROM monthly_gains WHERE position_id = ? AND month = ?`, positionID, monthKey).
		Scan(&row.PositionID, &row.Month, &row.Cumulative, &row.LastDay)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly row: %w", err)
	}
	return &row, nil
}

// ForMonth returns all cells for a month.
func (a *Accumulator) ForMonth(monthKey string) ([]Row, error) {
	rows, err := a.db.Query(`SELECT position_id, month, cumulative, last_day
		FROM monthly_gains WHERE month = ? ORDER BY position_id`, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.PositionID, &row.Month, &row.Cumulative, &row.LastDay); err != nil {
			return nil, fmt.Errorf("failed to scan monthly row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
