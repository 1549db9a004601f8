package analysis

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"monpecule/internal/database"
)

// Snapshot is the cached analysis result for one symbol.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Signal    string    `json:"signal"`
	Samples   int       `json:"samples"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotRepository stores analysis snapshots. The table is replaced
// wholesale on recomputation so readers never see a half-updated mix of
// old and new runs.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "analysis_snapshots").Logger(),
	}
}

// ReplaceAll swaps the entire snapshot table for the given set in one
// transaction.
func (r *SnapshotRepository) ReplaceAll(snapshots []Snapshot) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM analysis_snapshots`); err != nil {
			return fmt.Errorf("failed to clear snapshots: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT INTO analysis_snapshots
			(symbol, score, signal, sample_size, price, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range snapshots {
			_, err := stmt.Exec(s.Symbol, s.Score, s.Signal, s.Samples, s.Price,
				s.UpdatedAt.UTC().Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to insert snapshot for %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// All returns every snapshot, alphabetically by symbol.
func (r *SnapshotRepository) All() ([]Snapshot, error) {
	rows, err := r.db.Query(`SELECT symbol, score, signal, sample_size, price, updated_at
		FROM analysis_snapshots ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns the snapshot for one symbol, nil when absent.
func (r *SnapshotRepository) Get(symbol string) (*Snapshot, error) {
	row := r.db.QueryRow(`SELECT symbol, score, signal, sample_size, price, updated_at
		FROM analysis_snapshots WHERE symbol = ?`, symbol)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSnapshot(row interface{ Scan(...interface{}) error }) (Snapshot, error) {
	var s Snapshot
	var updated string
	if err := row.Scan(&s.Symbol, &s.Score, &s.Signal, &s.Samples, &s.Price, &updated); err != nil {
		return Snapshot{}, err
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		s.UpdatedAt = t
	}
	return s, nil
}
