package analysis

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Workers bounds concurrent provider calls during recomputation.
const Workers = 8

// UniverseSource lists the instruments to analyse.
type UniverseSource interface {
	DistinctSymbols() ([]string, error)
}

// Service recomputes the analysis cache over the full universe.
type Service struct {
	scorer    *Scorer
	snapshots *SnapshotRepository
	universe  UniverseSource
	watchlist []string
	log       zerolog.Logger
}

// NewService creates the analysis service.
func NewService(
	scorer *Scorer,
	snapshots *SnapshotRepository,
	universe UniverseSource,
	watchlist []string,
	log zerolog.Logger,
) *Service {
	return &Service{
		scorer:    scorer,
		snapshots: snapshots,
		universe:  universe,
		watchlist: watchlist,
		log:       log.With().Str("service", "analysis").Logger(),
	}
}

// RecomputeAll scores the whole universe (distinct held symbols plus the
// configured watchlist) through a bounded worker pool, then swaps the
// snapshot table in one transaction. Results collect order-independent;
// the swap happens only after every worker finishes.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	start := time.Now()

	instruments, err := s.buildUniverse()
	if err != nil {
		return 0, err
	}
	if len(instruments) == 0 {
		return 0, s.snapshots.ReplaceAll(nil)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make([]Snapshot, 0, len(instruments))
	work := make(chan Instrument)

	for i := 0; i < Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inst := range work {
				snap := s.scorer.Score(ctx, inst)
				mu.Lock()
				results = append(results, snap)
				mu.Unlock()
			}
		}()
	}

loop:
	for _, inst := range instruments {
		select {
		case work <- inst:
		case <-ctx.Done():
			break loop
		}
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	if err := s.snapshots.ReplaceAll(results); err != nil {
		return 0, err
	}

	s.log.Info().
		Int("instruments", len(results)).
		Str("duration", time.Since(start).Round(time.Millisecond).String()).
		Msg("Analysis recomputed")
	return len(results), nil
}

// All returns the current snapshot set.
func (s *Service) All() ([]Snapshot, error) {
	return s.snapshots.All()
}

// buildUniverse merges distinct held symbols with the watchlist,
// deduplicated case-insensitively.
func (s *Service) buildUniverse() ([]Instrument, error) {
	symbols, err := s.universe.DistinctSymbols()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []Instrument
	add := func(symbol string) {
		key := strings.ToUpper(strings.TrimSpace(symbol))
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Instrument{Symbol: symbol})
	}
	for _, symbol := range symbols {
		add(symbol)
	}
	for _, symbol := range s.watchlist {
		add(symbol)
	}
	return out, nil
}
