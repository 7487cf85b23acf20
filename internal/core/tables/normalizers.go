package tables

import "strings"

// sideAliases maps the spellings brokers export to a trade side.
var sideAliases = map[string]string{
	"buy":   "buy",
	"b":     "buy",
	"long":  "buy",
	"sell":  "sell",
	"s":     "sell",
	"short": "sell",
}

// NormalizeSide converts a trade side to "buy" or "sell".
// Unrecognized values are returned lowercased so the enum check rejects them.
func NormalizeSide(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if side, ok := sideAliases[s]; ok {
		return side
	}
	return s
}

// NormalizeDirection converts a backtest direction to "long" or "short".
func NormalizeDirection(s string) string {
	switch NormalizeSide(s) {
	case "buy":
		return "long"
	case "sell":
		return "short"
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

// NormalizeInstrument upper-cases a symbol and drops separators, so
// "eur/usd" and "EURUSD" are the same instrument.
func NormalizeInstrument(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("/", "", " ", "", "_", "").Replace(s)
}

// NormalizeColor lower-cases a hex color and adds the leading '#'.
// Named colors are left as they are.
func NormalizeColor(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	hex := strings.TrimPrefix(s, "#")
	if isHex(hex) && (len(hex) == 3 || len(hex) == 6 || len(hex) == 8) {
		return "#" + strings.ToLower(hex)
	}
	return s
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return s != ""
}

// lowerTrim is used for free-form status fields.
func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
