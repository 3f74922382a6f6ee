package resolver

import (
	"sort"
	"strings"
	"unicode"
)

// tickerAliases maps NSE symbols to the names they appear under in the
// financial press. Covers Nifty 50 constituents and a handful of other
// widely-covered companies.
var tickerAliases = map[string][]string{
	"RELIANCE":   {"Reliance", "RIL", "Reliance Industries"},
	"TCS":        {"TCS", "Tata Consultancy", "Tata Consultancy Services"},
	"INFY":       {"Infosys", "Infy"},
	"HDFCBANK":   {"HDFC Bank", "HDFC"},
	"ICICIBANK":  {"ICICI Bank", "ICICI"},
	"HINDUNILVR": {"Hindustan Unilever", "HUL"},
	"ITC":        {"ITC", "ITC Limited"},
	"SBIN":       {"SBI", "State Bank of India", "State Bank"},
	"BHARTIARTL": {"Bharti Airtel", "Airtel"},
	"KOTAKBANK":  {"Kotak Mahindra Bank", "Kotak Bank", "Kotak"},
	"LT":         {"Larsen & Toubro", "L&T", "Larsen and Toubro"},
	"AXISBANK":   {"Axis Bank", "Axis"},
	"ASIANPAINT": {"Asian Paints", "Asian Paint"},
	"MARUTI":     {"Maruti Suzuki", "Maruti"},
	"HCLTECH":    {"HCL Technologies", "HCL Tech", "HCL"},
	"SUNPHARMA":  {"Sun Pharma", "Sun Pharmaceutical"},
	"TATAMOTORS": {"Tata Motors", "Tata Motor"},
	"BAJFINANCE": {"Bajaj Finance", "Bajaj Fin"},
	"WIPRO":      {"Wipro"},
	"ULTRACEMCO": {"UltraTech Cement", "UltraTech"},
	"ONGC":       {"ONGC", "Oil and Natural Gas"},
	"NTPC":       {"NTPC"},
	"POWERGRID":  {"Power Grid", "Power Grid Corporation"},
	"TITAN":      {"Titan", "Titan Company"},
	"ADANIENT":   {"Adani Enterprises", "Adani"},
	"ADANIPORTS": {"Adani Ports", "Adani Ports and SEZ"},
	"TECHM":      {"Tech Mahindra", "TechM"},
	"TATASTEEL":  {"Tata Steel"},
	"NESTLEIND":  {"Nestle India", "Nestle"},
	"BAJAJFINSV": {"Bajaj Finserv"},
	"JSWSTEEL":   {"JSW Steel", "JSW"},
	"INDUSINDBK": {"IndusInd Bank", "IndusInd"},
	"DIVISLAB":   {"Divi's Laboratories", "Divi's Lab", "Divis Lab"},
	"GRASIM":     {"Grasim", "Grasim Industries"},
	"DRREDDY":    {"Dr. Reddy's", "Dr Reddy", "Dr. Reddy's Laboratories"},
	"CIPLA":      {"Cipla"},
	"EICHERMOT":  {"Eicher Motors", "Royal Enfield"},
	"APOLLOHOSP": {"Apollo Hospitals", "Apollo"},
	"COALINDIA":  {"Coal India", "CIL"},
	"BPCL":       {"BPCL", "Bharat Petroleum"},
	"HEROMOTOCO": {"Hero MotoCorp", "Hero"},
	"BRITANNIA":  {"Britannia", "Britannia Industries"},
	"HINDALCO":   {"Hindalco", "Hindalco Industries"},
	"SBILIFE":    {"SBI Life", "SBI Life Insurance"},
	"BAJAJ-AUTO": {"Bajaj Auto"},
	"TATACONSUM": {"Tata Consumer", "Tata Consumer Products"},
	"M&M":        {"Mahindra & Mahindra", "M&M", "Mahindra"},
	"HDFCLIFE":   {"HDFC Life", "HDFC Life Insurance"},
	"SHREECEM":   {"Shree Cement"},
	"VEDL":       {"Vedanta", "Vedanta Limited"},
	"BANKBARODA": {"Bank of Baroda", "BoB"},
	"PNB":        {"Punjab National Bank", "PNB"},
	"ZOMATO":     {"Zomato"},
	"PAYTM":      {"Paytm", "One97 Communications"},
	"NYKAA":      {"Nykaa", "FSN E-Commerce"},
}

type aliasEntry struct {
	alias  string // lowercase
	ticker string
}

// Gazetteer resolves company names and aliases to NSE symbols. Lookup is
// case-insensitive; scanning prefers the longest alias at any position so
// "HDFC Bank" wins over "HDFC".
type Gazetteer struct {
	byAlias map[string]string
	ordered []aliasEntry // sorted longest-first for scanning
}

// NewGazetteer compiles the alias table.
func NewGazetteer() *Gazetteer {
	g := &Gazetteer{byAlias: make(map[string]string)}
	for ticker, aliases := range tickerAliases {
		for _, alias := range aliases {
			lower := strings.ToLower(alias)
			g.byAlias[lower] = ticker
			g.ordered = append(g.ordered, aliasEntry{alias: lower, ticker: ticker})
		}
	}
	sort.Slice(g.ordered, func(i, j int) bool {
		if len(g.ordered[i].alias) != len(g.ordered[j].alias) {
			return len(g.ordered[i].alias) > len(g.ordered[j].alias)
		}
		return g.ordered[i].alias < g.ordered[j].alias
	})
	return g
}

// Known reports whether the symbol itself is in the table.
func (g *Gazetteer) Known(ticker string) bool {
	_, ok := tickerAliases[ticker]
	return ok
}

// Resolve maps an extracted entity to a symbol. Exact alias lookup first,
// then containment in either direction, mirroring how abbreviated names show
// up in copy ("Reliance Industries Ltd" contains the alias "reliance
// industries").
func (g *Gazetteer) Resolve(entity string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(entity))
	if lower == "" {
		return "", false
	}
	if ticker, ok := g.byAlias[lower]; ok {
		return ticker, true
	}
	// Containment on very short strings matches half the table.
	if len(lower) < 4 {
		return "", false
	}
	for _, e := range g.ordered {
		if strings.Contains(lower, e.alias) || strings.Contains(e.alias, lower) {
			return e.ticker, true
		}
	}
	return "", false
}

// Occurrences counts word-bounded appearances of each known alias in text and
// returns per-ticker frequencies. text is matched case-insensitively. Longer
// aliases consume their span so "Tata Consultancy Services" is not also
// counted as "Tata Consultancy".
func (g *Gazetteer) Occurrences(text string) map[string]int {
	lower := strings.ToLower(text)
	claimed := make([]bool, len(lower))
	counts := make(map[string]int)
	for _, e := range g.ordered {
		from := 0
		for {
			idx := strings.Index(lower[from:], e.alias)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(e.alias)
			from = start + 1
			if !wordBounded(lower, start, end) {
				continue
			}
			if spanClaimed(claimed, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				claimed[i] = true
			}
			counts[e.ticker]++
		}
	}
	return counts
}

func spanClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func wordBounded(s string, start, end int) bool {
	if start > 0 && isWordByte(s[start-1]) {
		return false
	}
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
