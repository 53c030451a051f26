package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stockwatch/internal/symbol"
)

func TestFormatSymbol(t *testing.T) {
	nse := symbol.Normalize("RELIANCE")
	bse := symbol.Normalize("RELIANCE.BO")

	require.Equal(t, "RELIANCE.NS", FormatSymbol(nse, KindYahoo))
	require.Equal(t, "RELIANCE.BO", FormatSymbol(bse, KindYahoo))
	require.Equal(t, "RELIANCE-EQ", FormatSymbol(nse, KindUpstox))
	require.Equal(t, "RELIANCE", FormatSymbol(nse, KindBhav))
	require.Equal(t, "RELIANCE", FormatSymbol(nse, KindMarketStack))
	require.Equal(t, "RELIANCE", FormatSymbol(nse, KindAlphaVantage))
}

func TestFallbackOrderIsFreeProvidersOnly(t *testing.T) {
	require.NotContains(t, FallbackOrder, KindUpstox, "the brokerage is primary-only, never a fallback")
	require.Equal(t, KindYahoo, FallbackOrder[0])
}
