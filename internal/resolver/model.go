package resolver

import (
	"strings"
	"unicode"
)

// EntityModel extracts organization-like entities from text. The default
// implementation is a heuristic tagger; a real NER model can be plugged in
// behind the same interface.
type EntityModel interface {
	Organizations(text string) []string
}

// connector words allowed inside a capitalised span ("Bank of Baroda",
// "Larsen & Toubro").
var spanConnectors = map[string]struct{}{
	"of": {}, "and": {}, "&": {}, "the": {},
}

// capitalised words common in market copy that should not begin an entity
// span. Sentence-initial "Shares of X" would otherwise swallow X.
var spanLeadBlock = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "In": {}, "On": {}, "At": {}, "As": {},
	"It": {}, "Its": {}, "This": {}, "That": {}, "After": {}, "Before": {},
	"While": {}, "However": {}, "Meanwhile": {}, "According": {},
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {},
	"Friday": {}, "Saturday": {}, "Sunday": {},
	"India": {}, "Indian": {}, "NSE": {}, "BSE": {}, "Sensex": {}, "Nifty": {},
	"RBI": {}, "SEBI": {}, "GDP": {}, "Q1": {}, "Q2": {}, "Q3": {}, "Q4": {},
	"Shares": {}, "Stocks": {}, "Stock": {}, "Markets": {}, "Market": {},
	"Investors": {}, "Traders": {}, "Analysts": {}, "Earnings": {},
	"Results": {}, "Profit": {}, "Revenue": {}, "Rupee": {},
}

// HeuristicTagger finds runs of capitalised words and treats them as
// candidate organizations. Unresolvable spans are discarded downstream, so
// precision matters less than recall here.
type HeuristicTagger struct {
	// MaxSpanWords bounds how many words one entity may span. Zero means 4.
	MaxSpanWords int
}

func (h HeuristicTagger) Organizations(text string) []string {
	maxSpan := h.MaxSpanWords
	if maxSpan <= 0 {
		maxSpan = 4
	}
	words := strings.Fields(text)
	seen := make(map[string]struct{})
	var out []string

	var span []string
	flush := func() {
		span = trimConnectors(span)
		if len(span) == 0 || len(span) > maxSpan {
			span = nil
			return
		}
		if len(span) == 1 {
			if _, stop := spanLeadBlock[span[0]]; stop {
				span = nil
				return
			}
		}
		candidate := strings.Join(span, " ")
		if _, dup := seen[candidate]; !dup {
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
		span = nil
	}

	for _, w := range words {
		cleaned := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&' && r != '\''
		})
		if cleaned == "" {
			flush()
			continue
		}
		if _, conn := spanConnectors[strings.ToLower(cleaned)]; conn && len(span) > 0 {
			span = append(span, cleaned)
		} else if startsUpper(cleaned) {
			if len(span) == 0 {
				if _, blocked := spanLeadBlock[cleaned]; blocked {
					continue
				}
			}
			span = append(span, cleaned)
		} else {
			flush()
		}
		// Punctuation after the word ends the span even when it was kept.
		if strings.ContainsAny(w, ".,;:!?\"')") && !strings.HasSuffix(cleaned, ".") {
			flush()
		}
	}
	flush()
	return out
}

func trimConnectors(span []string) []string {
	for len(span) > 0 {
		if _, conn := spanConnectors[strings.ToLower(span[len(span)-1])]; conn {
			span = span[:len(span)-1]
			continue
		}
		break
	}
	for len(span) > 0 {
		if _, conn := spanConnectors[strings.ToLower(span[0])]; conn {
			span = span[1:]
			continue
		}
		break
	}
	return span
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
