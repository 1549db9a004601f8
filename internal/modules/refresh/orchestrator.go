// Package refresh orchestrates price updates: it resolves every distinct
// identifier once, then fans the result out to all positions holding it.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"monpecule/internal/modules/currency"
	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/positions"
	"monpecule/internal/modules/quotes"
	"monpecule/internal/modules/valuation"
)

// Workers bounds concurrent identifier resolutions. Providers throttle
// aggressively past this.
const Workers = 8

// Options selects the refresh scope and mode.
type Options struct {
	// UserID limits the refresh to one user's positions. Zero means all.
	UserID int64
	// Scheduled refreshes take the provider's previous close as the day
	// reference. Manual refreshes keep the last stored price instead, so
	// the day figure reads "since I last looked".
	Scheduled bool
}

// Result summarizes one refresh run.
type Result struct {
	Identifiers int      `json:"identifiers"`
	Updated     int      `json:"updated"`
	Failed      []string `json:"failed,omitempty"`
	Duration    string   `json:"duration"`
}

// LastRefreshRecorder marks users as refreshed. A zero userID marks all.
type LastRefreshRecorder interface {
	TouchLastRefresh(userID int64) error
}

// Orchestrator runs full refresh cycles.
type Orchestrator struct {
	resolver    *quotes.Resolver
	positions   *positions.Repository
	accumulator *monthly.Accumulator
	converter   *currency.Converter
	users       LastRefreshRecorder
	delay       time.Duration
	log         zerolog.Logger
}

// NewOrchestrator creates a refresh orchestrator. delay spaces provider
// calls out per worker; zero disables pacing.
func NewOrchestrator(
	resolver *quotes.Resolver,
	positionRepo *positions.Repository,
	accumulator *monthly.Accumulator,
	converter *currency.Converter,
	users LastRefreshRecorder,
	delay time.Duration,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolver:    resolver,
		positions:   positionRepo,
		accumulator: accumulator,
		converter:   converter,
		users:       users,
		delay:       delay,
		log:         log.With().Str("service", "refresh").Logger(),
	}
}

// Run refreshes every distinct identifier in scope through a bounded
// worker pool. Each identifier is resolved exactly once no matter how
// many positions or users hold it; a failure for one identifier never
// stops the others.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	identifiers, err := o.positions.DistinctIdentifiers(opts.UserID)
	if err != nil {
		return nil, err
	}

	result := &Result{Identifiers: len(identifiers)}
	if len(identifiers) == 0 {
		result.Duration = time.Since(start).Round(time.Millisecond).String()
		return result, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan string)

	for i := 0; i < Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for identifier := range work {
				updated, err := o.refreshIdentifier(ctx, identifier, opts)
				mu.Lock()
				if err != nil {
					result.Failed = append(result.Failed, identifier)
				} else {
					result.Updated += updated
				}
				mu.Unlock()
				if o.delay > 0 {
					select {
					case <-time.After(o.delay):
					case <-ctx.Done():
					}
				}
			}
		}()
	}

loop:
	for _, identifier := range identifiers {
		select {
		case work <- identifier:
		case <-ctx.Done():
			break loop
		}
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if o.users != nil && result.Updated > 0 {
		if err := o.users.TouchLastRefresh(opts.UserID); err != nil {
			o.log.Warn().Err(err).Msg("Failed to record last refresh")
		}
	}

	result.Duration = time.Since(start).Round(time.Millisecond).String()
	o.log.Info().
		Int("identifiers", result.Identifiers).
		Int("updated", result.Updated).
		Int("failed", len(result.Failed)).
		Bool("scheduled", opts.Scheduled).
		Str("duration", result.Duration).
		Msg("Refresh complete")
	return result, nil
}

// refreshIdentifier resolves one identifier and applies the quote to all
// positions in scope that hold it. Returns how many positions changed.
func (o *Orchestrator) refreshIdentifier(ctx context.Context, identifier string, opts Options) (int, error) {
	res, err := o.resolver.Resolve(ctx, identifier)
	if err != nil {
		o.log.Warn().Err(err).Str("identifier", identifier).Msg("Resolution failed")
		return 0, err
	}

	held, err := o.positions.GetByIdentifier(identifier, opts.UserID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	day := monthly.DayKey(now)
	month := monthly.MonthKey(now)

	updated := 0
	for _, p := range held {
		previous := o.previousFor(p, res, opts.Scheduled)

		if err := o.positions.ApplyQuote(p.ID, res.Symbol, res.Price, previous, res.Currency); err != nil {
			o.log.Error().Err(err).Int64("position", p.ID).Msg("Failed to apply quote")
			continue
		}
		if err := o.positions.UpsertHistory(p.ID, day, res.Price, res.Currency); err != nil {
			o.log.Warn().Err(err).Int64("position", p.ID).Msg("Failed to record history")
		}

		if opts.Scheduled {
			o.feedMonthly(p, res.Price, previous, res.Currency, month, day)
		}
		updated++
	}
	return updated, nil
}

// previousFor picks the day-reference price. Scheduled runs trust the
// provider's previous close; manual runs keep the last stored current
// price so the day delta spans the gap since the last refresh. Either
// way a missing value falls back to the other source, and the valuation
// anomaly guard handles whatever is left.
func (o *Orchestrator) previousFor(p positions.Position, res *quotes.Resolution, scheduled bool) float64 {
	if scheduled {
		if res.PreviousClose > 0 {
			return res.PreviousClose
		}
		return p.CurrentPrice
	}
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return res.PreviousClose
}

// feedMonthly converts the day's gain to the reference currency and hands
// it to the accumulator, which applies at most one delta per calendar day.
func (o *Orchestrator) feedMonthly(p positions.Position, current, previous float64, cur, month, day string) {
	p.CurrentPrice = current
	p.PreviousPrice = previous
	p.Currency = cur

	v := valuation.Value(p)
	dayGain, err := o.converter.ToReference(v.DayGainLoss, v.Currency)
	if err != nil {
		o.log.Warn().Err(err).Int64("position", p.ID).Str("currency", v.Currency).
			Msg("Skipping monthly feed for unknown currency")
		return
	}
	if err := o.accumulator.Accumulate(p.ID, month, day, dayGain); err != nil {
		o.log.Error().Err(err).Int64("position", p.ID).Msg("Failed to accumulate monthly gain")
	}
}
