package sentiment

import (
	"context"
	"strings"

	"github.com/rish-kun/alphastream/internal/helpers"
	"github.com/rish-kun/alphastream/internal/store"
)

// localConfidenceCap bounds how sure the lexicon path may claim to be. A
// word-count classifier is a last resort and its rows must be
// distinguishable from model output downstream.
const localConfidenceCap = 0.5

var positiveTerms = []string{
	"beat", "beats", "surge", "surged", "rally", "rallied", "record",
	"profit", "profits", "gain", "gains", "gained", "upgrade", "upgraded",
	"outperform", "strong", "growth", "expansion", "dividend", "buyback",
	"bullish", "jump", "jumped", "rose", "higher", "wins", "won", "order",
	"approval", "approved", "exceeds", "exceeded", "robust",
}

var negativeTerms = []string{
	"miss", "missed", "fall", "fell", "falls", "drop", "dropped", "plunge",
	"plunged", "loss", "losses", "downgrade", "downgraded", "underperform",
	"weak", "decline", "declined", "fraud", "probe", "penalty", "fine",
	"bearish", "slump", "slumped", "lower", "cut", "cuts", "default",
	"lawsuit", "recall", "resignation", "debt", "writedown",
}

// LexiconClassifier scores text by counting financial sentiment terms. It
// never fails, so it terminates every inference chain.
type LexiconClassifier struct{}

// Name returns the model path label for locally produced rows.
func (LexiconClassifier) Name() string { return store.ModelLocalFallback }

func (LexiconClassifier) Infer(_ context.Context, article store.ArticleRecord, _ string) (Judgment, error) {
	text := helpers.NormalizeText(article.Title + " " + article.BodyText)
	words := strings.Fields(text)

	wordSet := make(map[string]int, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,;:!?'\"()")]++
	}
	var pos, neg int
	for _, t := range positiveTerms {
		pos += wordSet[t]
	}
	for _, t := range negativeTerms {
		neg += wordSet[t]
	}

	total := pos + neg
	var score float64
	if total > 0 {
		// dampen: one stray word should not read as a strong signal
		score = float64(pos-neg) / float64(total+2)
	}

	confidence := 0.2 + 0.05*float64(total)
	if confidence > localConfidenceCap {
		confidence = localConfidenceCap
	}

	return Judgment{
		SentimentScore: score,
		Confidence:     confidence,
		Explanation:    "lexicon-based classification",
		ImpactTimeline: ImpactShortTerm,
	}, nil
}
