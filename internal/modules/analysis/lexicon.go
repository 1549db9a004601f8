package analysis

import "strings"

// Headline polarity uses a small financial-news lexicon. Each matched
// word counts once; the item polarity is (positive - negative) over the
// total matches, in [-1, 1].

var positiveWords = map[string]struct{}{
	"beat": {}, "beats": {}, "surge": {}, "surges": {}, "rally": {},
	"rallies": {}, "record": {}, "upgrade": {}, "upgraded": {},
	"growth": {}, "profit": {}, "profits": {}, "gain": {}, "gains": {},
	"strong": {}, "soar": {}, "soars": {}, "jump": {}, "jumps": {},
	"outperform": {}, "buy": {}, "bullish": {}, "dividend": {},
	"raises": {}, "expands": {}, "wins": {}, "approval": {},
}

var negativeWords = map[string]struct{}{
	"miss": {}, "misses": {}, "plunge": {}, "plunges": {}, "drop": {},
	"drops": {}, "fall": {}, "falls": {}, "downgrade": {}, "downgraded": {},
	"loss": {}, "losses": {}, "weak": {}, "lawsuit": {}, "probe": {},
	"recall": {}, "fraud": {}, "cuts": {}, "cut": {}, "warning": {},
	"underperform": {}, "sell": {}, "bearish": {}, "layoffs": {},
	"bankruptcy": {}, "slump": {}, "slumps": {}, "decline": {}, "declines": {},
}

// polarity scores one headline in [-1, 1]. Zero when nothing matches.
func polarity(title string) float64 {
	positive, negative := 0, 0
	for _, word := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if _, ok := positiveWords[word]; ok {
			positive++
		}
		if _, ok := negativeWords[word]; ok {
			negative++
		}
	}
	if positive+negative == 0 {
		return 0
	}
	return float64(positive-negative) / float64(positive+negative)
}
