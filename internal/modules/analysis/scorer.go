// Package analysis scores the instrument universe: news polarity for
// equities, short-window price trend for funds, cached as a snapshot
// table that is only ever replaced wholesale.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"monpecule/internal/market"
)

// Signal classifications.
const (
	SignalBuy     = "BUY"
	SignalSell    = "SELL"
	SignalNeutral = "NEUTRAL"
	SignalNoData  = "NO_DATA"
)

const (
	// NewsRecencyDays bounds how old a headline may be to count.
	NewsRecencyDays = 10
	// TrendLookbackDays is the trading-day window for the fund trend.
	TrendLookbackDays = 15
	// Trend bands, in percent change over the lookback window.
	trendFlatBand   = 0.5
	trendStrongBand = 2.0

	sentimentBuyFloor = 0.5
)

// Instrument is one universe member to score.
type Instrument struct {
	Symbol string
	Name   string
}

// Scorer computes per-instrument signals from provider data.
type Scorer struct {
	news      market.NewsProvider
	history   market.HistoryProvider
	quotes    market.QuoteProvider
	watchlist map[string]struct{}
	now       func() time.Time
	log       zerolog.Logger
}

// NewScorer creates a scorer. watchlist symbols are always scored as
// funds regardless of name.
func NewScorer(
	news market.NewsProvider,
	history market.HistoryProvider,
	quotes market.QuoteProvider,
	watchlist []string,
	log zerolog.Logger,
) *Scorer {
	wl := make(map[string]struct{}, len(watchlist))
	for _, s := range watchlist {
		wl[strings.ToUpper(s)] = struct{}{}
	}
	return &Scorer{
		news:      news,
		history:   history,
		quotes:    quotes,
		watchlist: wl,
		now:       time.Now,
		log:       log.With().Str("service", "analysis").Logger(),
	}
}

// Score classifies one instrument. Fund-like instruments get the trend
// path, everything else the news-sentiment path.
func (s *Scorer) Score(ctx context.Context, inst Instrument) Snapshot {
	if s.isFund(inst) {
		return s.scoreTrend(ctx, inst)
	}
	return s.scoreSentiment(ctx, inst)
}

func (s *Scorer) isFund(inst Instrument) bool {
	if _, ok := s.watchlist[strings.ToUpper(inst.Symbol)]; ok {
		return true
	}
	name := strings.ToLower(inst.Name)
	for _, marker := range []string{"etf", "ucits", "index", "msci", "world", "s&p", "tracker"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// scoreSentiment averages lexicon polarity over recent headlines.
// Items older than the recency window, or dated in the future, do not
// count; zero qualifying items is NO_DATA, not NEUTRAL.
func (s *Scorer) scoreSentiment(ctx context.Context, inst Instrument) Snapshot {
	snap := Snapshot{Symbol: inst.Symbol, Signal: SignalNoData, UpdatedAt: s.now()}
	snap.Price = s.currentPrice(ctx, inst.Symbol)

	items, err := s.news.News(ctx, inst.Symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", inst.Symbol).Msg("News fetch failed")
		return snap
	}

	now := s.now()
	oldest := now.AddDate(0, 0, -NewsRecencyDays)
	var polarities []float64
	for _, item := range items {
		if item.Published.Before(oldest) || item.Published.After(now) {
			continue
		}
		polarities = append(polarities, polarity(item.Title))
	}
	if len(polarities) == 0 {
		return snap
	}

	mean := stat.Mean(polarities, nil)
	snap.Score = mean
	snap.Samples = len(polarities)
	switch {
	case mean >= sentimentBuyFloor:
		snap.Signal = SignalBuy
	case mean < 0:
		snap.Signal = SignalSell
	default:
		snap.Signal = SignalNeutral
	}
	return snap
}

// scoreTrend classifies a fund by its percentage change over the
// lookback window of daily closes.
func (s *Scorer) scoreTrend(ctx context.Context, inst Instrument) Snapshot {
	snap := Snapshot{Symbol: inst.Symbol, Signal: SignalNoData, UpdatedAt: s.now()}

	// Calendar margin so the window holds enough trading days.
	from := s.now().AddDate(0, 0, -TrendLookbackDays*2)
	candles, err := s.history.History(ctx, inst.Symbol, from)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", inst.Symbol).Msg("History fetch failed")
		return snap
	}
	if len(candles) < 2 {
		return snap
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	snap.Price = closes[len(closes)-1]
	snap.Samples = len(closes)

	change := trendChange(closes)
	snap.Score = change
	switch {
	case change >= trendFlatBand:
		snap.Signal = SignalBuy
	case change <= -trendFlatBand:
		snap.Signal = SignalSell
	default:
		snap.Signal = SignalNeutral
	}
	return snap
}

// trendChange returns the percent change over the lookback window, via
// rate-of-change when enough closes exist, plain first-to-last otherwise.
func trendChange(closes []float64) float64 {
	period := TrendLookbackDays
	if len(closes) > period {
		roc := talib.Roc(closes, period)
		return roc[len(roc)-1]
	}
	first := closes[0]
	if first == 0 {
		return 0
	}
	return (closes[len(closes)-1] - first) / first * 100
}

// Strength labels a trend score against the band thresholds. Used for
// display only; the signal itself is three-valued.
func Strength(change float64) string {
	switch {
	case change >= trendStrongBand:
		return "strong up"
	case change >= trendFlatBand:
		return "up"
	case change <= -trendStrongBand:
		return "strong down"
	case change <= -trendFlatBand:
		return "down"
	default:
		return "flat"
	}
}

func (s *Scorer) currentPrice(ctx context.Context, symbol string) float64 {
	if s.quotes == nil {
		return 0
	}
	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil || q == nil {
		return 0
	}
	return q.Price
}
