package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/database"
)

func snapshotDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:analysis_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

func TestReplaceAllSwapsWholesale(t *testing.T) {
	repo := NewSnapshotRepository(snapshotDB(t), zerolog.Nop())
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.ReplaceAll([]Snapshot{
		{Symbol: "AAA", Score: 0.7, Signal: SignalBuy, Samples: 3, Price: 10, UpdatedAt: now},
		{Symbol: "BBB", Score: -0.2, Signal: SignalSell, Samples: 2, Price: 20, UpdatedAt: now},
	}))

	// The second run drops BBB entirely; no stale rows may survive.
	require.NoError(t, repo.ReplaceAll([]Snapshot{
		{Symbol: "AAA", Score: 0.1, Signal: SignalNeutral, Samples: 1, Price: 11, UpdatedAt: now},
		{Symbol: "CCC", Score: 0, Signal: SignalNoData, Samples: 0, Price: 0, UpdatedAt: now},
	}))

	all, err := repo.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AAA", all[0].Symbol)
	assert.Equal(t, SignalNeutral, all[0].Signal)
	assert.Equal(t, "CCC", all[1].Symbol)

	gone, err := repo.Get("BBB")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReplaceAllEmptyClearsTable(t *testing.T) {
	repo := NewSnapshotRepository(snapshotDB(t), zerolog.Nop())

	require.NoError(t, repo.ReplaceAll([]Snapshot{
		{Symbol: "AAA", Signal: SignalBuy, UpdatedAt: time.Now()},
	}))
	require.NoError(t, repo.ReplaceAll(nil))

	all, err := repo.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

type staticUniverse struct{ symbols []string }

func (s *staticUniverse) DistinctSymbols() ([]string, error) { return s.symbols, nil }

func TestRecomputeAllCoversUniverseAndWatchlist(t *testing.T) {
	repo := NewSnapshotRepository(snapshotDB(t), zerolog.Nop())
	scorer := newsScorer(nil) // every equity comes back NO_DATA

	svc := NewService(scorer, repo, &staticUniverse{symbols: []string{"BNP.PA", "bnp.pa", "MC.PA"}},
		[]string{"CW8.PA"}, zerolog.Nop())

	n, err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "duplicates collapse case-insensitively, watchlist adds its symbol")

	all, err := svc.All()
	require.NoError(t, err)
	symbols := make([]string, 0, len(all))
	for _, s := range all {
		symbols = append(symbols, s.Symbol)
	}
	assert.ElementsMatch(t, []string{"BNP.PA", "MC.PA", "CW8.PA"}, symbols)
}
