// Package symbol canonicalizes user-entered Indian equity tickers and
// projects them into the formats each data provider expects.
package symbol

import (
	"regexp"
	"strings"
)

// Exchange identifiers.
const (
	NSE = "NSE"
	BSE = "BSE"
)

// Canonical is the normalized bare-ticker representation used internally,
// independent of any provider's wire format.
type Canonical struct {
	Ticker   string // bare ticker, e.g. RELIANCE
	Exchange string // NSE or BSE
	// brokerKey preserves an EXCHANGE_EQ|KEY input verbatim so the
	// brokerage projection can pass it through unchanged.
	brokerKey string
}

var (
	reBare     = regexp.MustCompile(`^[A-Z]{2,10}$`)
	reSuffixEQ = regexp.MustCompile(`^[A-Z]{2,10}-EQ$`)
	reNSEKey   = regexp.MustCompile(`^NSE_EQ\|[A-Z0-9]+$`)
	reBSEKey   = regexp.MustCompile(`^BSE_EQ\|[A-Z0-9]+$`)
	reYahoo    = regexp.MustCompile(`^[A-Z]{2,10}\.(NS|BO)$`)
)

// reservedTokens are non-equity instrument classes that are never valid
// equity symbols.
var reservedTokens = map[string]struct{}{
	"CASH": {}, "FUT": {}, "OPT": {},
	"FUTSTK": {}, "FUTIDX": {}, "OPTSTK": {}, "OPTIDX": {},
}

// Normalize trims and upper-cases raw and strips any recognized provider
// decoration, producing the canonical form. Normalizing an already-canonical
// ticker is a no-op.
func Normalize(raw string) Canonical {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "NSE_EQ|"):
		return Canonical{Ticker: strings.TrimPrefix(s, "NSE_EQ|"), Exchange: NSE, brokerKey: s}
	case strings.HasPrefix(s, "BSE_EQ|"):
		return Canonical{Ticker: strings.TrimPrefix(s, "BSE_EQ|"), Exchange: BSE, brokerKey: s}
	case strings.HasSuffix(s, ".NS"):
		return Canonical{Ticker: strings.TrimSuffix(s, ".NS"), Exchange: NSE}
	case strings.HasSuffix(s, ".BO"):
		return Canonical{Ticker: strings.TrimSuffix(s, ".BO"), Exchange: BSE}
	case strings.HasSuffix(s, "-EQ"):
		return Canonical{Ticker: strings.TrimSuffix(s, "-EQ"), Exchange: NSE}
	default:
		return Canonical{Ticker: s, Exchange: NSE}
	}
}

// Validation is the outcome of validating a raw symbol. Validate is pure and
// never touches the network.
type Validation struct {
	IsValid    bool     `json:"is_valid"`
	Errors     []string `json:"errors,omitempty"`
	Normalized string   `json:"normalized_symbol"`
}

// Validate checks raw against the accepted Indian equity symbol formats and
// the reserved non-equity token set.
func Validate(raw string) Validation {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Validation{Errors: []string{"symbol is required"}}
	}

	var errs []string
	valid := reBare.MatchString(s) ||
		reSuffixEQ.MatchString(s) ||
		reNSEKey.MatchString(s) ||
		reBSEKey.MatchString(s) ||
		reYahoo.MatchString(s)
	if !valid {
		errs = append(errs, "invalid Indian stock symbol format")
	}
	if _, reserved := reservedTokens[s]; reserved {
		errs = append(errs, "invalid symbol type - use equity symbols only")
	}

	return Validation{
		IsValid:    len(errs) == 0,
		Errors:     errs,
		Normalized: Normalize(s).Ticker,
	}
}

// ExchangeOf classifies a symbol's home exchange. Explicit exchange markers
// in the string win; everything else defaults to NSE.
func ExchangeOf(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(s, "BSE") || strings.HasSuffix(s, ".BO") {
		return BSE
	}
	return NSE
}

// Yahoo returns the chart-provider projection (RELIANCE.NS / RELIANCE.BO).
func (c Canonical) Yahoo() string {
	if c.Exchange == BSE {
		return c.Ticker + ".BO"
	}
	return c.Ticker + ".NS"
}

// Broker returns the brokerage projection. EXCHANGE_EQ|KEY inputs pass
// through unchanged; bare tickers become TICKER-EQ.
func (c Canonical) Broker() string {
	if c.brokerKey != "" {
		return c.brokerKey
	}
	return c.Ticker + "-EQ"
}

// Bare returns the canonical bare ticker used by the free quote providers.
func (c Canonical) Bare() string { return c.Ticker }
