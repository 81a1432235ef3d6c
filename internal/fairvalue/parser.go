package fairvalue

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/pulsecore/internal/types"
)

// symbolAliases maps free-text aliases (lowercased) to canonical
// ticker symbols.
var symbolAliases = map[string]string{
	"bitcoin":  "BTC",
	"btc":      "BTC",
	"ethereum": "ETH",
	"eth":      "ETH",
	"ether":    "ETH",
	"solana":   "SOL",
	"sol":      "SOL",
	"dogecoin": "DOGE",
	"doge":     "DOGE",
	"xrp":      "XRP",
	"ripple":   "XRP",
	"polygon":  "MATIC",
	"matic":    "MATIC",
	"sui":      "SUI",
}

// symbolOrder fixes the scan order over symbolAliases so "first
// whole-word match" is deterministic regardless of map iteration.
var symbolOrder = []string{
	"bitcoin", "btc", "ethereum", "ether", "eth", "solana", "sol",
	"dogecoin", "doge", "ripple", "xrp", "polygon", "matic", "sui",
}

var belowKeywords = []string{
	"below", "under", "less than", "lower than", "drop to", "fall to",
	"dip to", "beneath", "crash to",
}

var aboveKeywords = []string{
	"above", "over", "exceed", "hit", "reach", "surpass", "higher than",
	"more than", "at least",
}

var targetPriceRe = regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmM]?)`)

// expiryPhraseRe matches "(on|by|before) <Month> <day>[, <year>]" or
// "<Month> <day>[st|nd|rd|th], <year>".
var expiryPhraseRe = regexp.MustCompile(
	`(?i)(?:(?:on|by|before)\s+)?([A-Z][a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?`)

var monthByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func wholeWordIndex(text, word string) int {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// parseSymbol returns the first whole-word alias match, by leftmost
// position in text, then by symbolOrder for ties.
func parseSymbol(text string) (string, bool) {
	bestIdx := -1
	bestSymbol := ""
	for _, alias := range symbolOrder {
		idx := wholeWordIndex(text, alias)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx = idx
			bestSymbol = symbolAliases[alias]
		}
	}
	if bestIdx == -1 {
		return "", false
	}
	return bestSymbol, true
}

// parseTargetPrice returns the first "$<number>[k|m]" occurrence.
func parseTargetPrice(text string) (decimal.Decimal, bool) {
	m := targetPriceRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	numStr := strings.ReplaceAll(m[1], ",", "")
	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil || val <= 0 {
		return decimal.Zero, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		val *= 1e3
	case "m":
		val *= 1e6
	}
	if val <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(val), true
}

// parseDirection reports isAbove: below-keywords win if present,
// else above-keywords, else default true.
func parseDirection(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range belowKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range aboveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return true
}

// parseExpiry returns the first "<Month> <day>[, <year>]"-shaped date.
// A missing year defaults to now's year, and a date that lies before
// now is moved forward by exactly one year (once, so an explicit year
// two or more years back still yields a past date).
func parseExpiry(text string, now time.Time) (*time.Time, bool) {
	m := expiryPhraseRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	monthName := strings.ToLower(m[1])
	month, ok := monthByName[monthName]
	if !ok {
		return nil, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return nil, false
	}

	year := now.Year()
	hadYear := m[3] != ""
	if hadYear {
		year, err = strconv.Atoi(m[3])
		if err != nil {
			return nil, false
		}
	}

	candidate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if candidate.Before(now) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return &candidate, true
}

// ParseQuestion extracts a CryptoMarketMatch from free-text market
// question. now anchors "next occurrence" bumping for year-less
// dates. Returns ok=false when the symbol alias table has no match.
func ParseQuestion(question string, now time.Time) (types.CryptoMarketMatch, bool) {
	symbol, ok := parseSymbol(question)
	if !ok {
		return types.CryptoMarketMatch{}, false
	}
	target, ok := parseTargetPrice(question)
	if !ok {
		return types.CryptoMarketMatch{}, false
	}
	isAbove := parseDirection(question)
	expiry, _ := parseExpiry(question, now)

	return types.CryptoMarketMatch{
		Symbol:      symbol,
		TargetPrice: target,
		IsAbove:     isAbove,
		ExpiryDate:  expiry,
	}, true
}
