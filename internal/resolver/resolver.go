// Package resolver maps article text to NSE ticker symbols. Resolution is
// two-pass: a gazetteer of known aliases plus explicit cashtags, then an
// entity model for names the gazetteer can only match loosely.
package resolver

import (
	"log"
	"regexp"
	"sort"
)

var cashtagPattern = regexp.MustCompile(`\$([A-Z]{2,5})\b|NSE:([A-Z]{2,5})\b`)

// Match confidence per resolution path. Gazetteer hits and explicit cashtags
// are taken at face value; model-only matches resolved by partial alias
// containment are discounted.
const (
	confExact = 1.0
	confModel = 0.7
)

// Mention is one resolved ticker for an article.
type Mention struct {
	Ticker    string
	Relevance float64
}

// Resolver extracts ticker mentions from canonical articles.
type Resolver struct {
	gaz    *Gazetteer
	model  EntityModel
	logger *log.Logger
}

// New builds a Resolver. model may be nil to skip the model pass.
func New(model EntityModel) *Resolver {
	return &Resolver{
		gaz:    NewGazetteer(),
		model:  model,
		logger: log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags),
	}
}

// Resolve returns the tickers mentioned in the article, each with a relevance
// score in [0,1]. Output is sorted by descending relevance, ties by symbol,
// and is deterministic for identical input.
func (r *Resolver) Resolve(title, body string) []Mention {
	type hit struct {
		freq    int
		inTitle bool
		conf    float64
	}
	hits := make(map[string]*hit)

	merge := func(ticker string, freq int, inTitle bool, conf float64) {
		h, ok := hits[ticker]
		if !ok {
			hits[ticker] = &hit{freq: freq, inTitle: inTitle, conf: conf}
			return
		}
		h.freq += freq
		h.inTitle = h.inTitle || inTitle
		if conf > h.conf {
			h.conf = conf
		}
	}

	// Pass one: gazetteer over title and body, plus cashtags.
	for ticker, n := range r.gaz.Occurrences(title) {
		merge(ticker, n, true, confExact)
	}
	for ticker, n := range r.gaz.Occurrences(body) {
		merge(ticker, n, false, confExact)
	}
	for _, m := range cashtagPattern.FindAllStringSubmatch(title+" "+body, -1) {
		ticker := m[1]
		if ticker == "" {
			ticker = m[2]
		}
		if r.gaz.Known(ticker) {
			merge(ticker, 1, false, confExact)
		}
	}

	// Pass two: entity model for names the scanner missed.
	if r.model != nil {
		for _, org := range r.model.Organizations(title + " " + body) {
			ticker, ok := r.gaz.Resolve(org)
			if !ok {
				continue
			}
			if _, already := hits[ticker]; already {
				continue
			}
			merge(ticker, 1, false, confModel)
		}
	}

	out := make([]Mention, 0, len(hits))
	for ticker, h := range hits {
		out = append(out, Mention{Ticker: ticker, Relevance: relevance(h.freq, h.inTitle, h.conf)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// relevance combines mention frequency, title presence and match confidence.
// A single exact body mention scores 0.8; each extra mention adds 0.05 and a
// title appearance adds 0.1, capped at 1.
func relevance(freq int, inTitle bool, conf float64) float64 {
	if freq < 1 {
		freq = 1
	}
	score := 0.8 + 0.05*float64(freq-1)
	if inTitle {
		score += 0.1
	}
	score *= conf
	if score > 1 {
		score = 1
	}
	return score
}
