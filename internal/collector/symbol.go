package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/quantlab/internal/core"
)

// DefaultQuote is appended to bare base assets ("BTC" becomes "BTCUSDT").
const DefaultQuote = "USDT"

// Quote currencies recognised as a pair suffix, in detection order.
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"}

var validSymbol = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeSymbol converts "btc", "BTC-USDT", "btc/usdt" or "BTC_USDT" to
// the exchange form "BTCUSDT".
func NormalizeSymbol(input, defaultQuote string) string {
	if input == "" {
		return ""
	}
	s := strings.ToUpper(input)
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s
		}
	}
	if defaultQuote == "" {
		defaultQuote = DefaultQuote
	}
	return s + strings.ToUpper(defaultQuote)
}

// ValidateSymbol rejects symbols the exchange could never accept.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return core.WrapError(core.ErrPrecondition, fmt.Errorf("symbol cannot be empty"))
	}
	if !validSymbol.MatchString(symbol) {
		return core.WrapError(core.ErrPrecondition, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return nil
}
