package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TryParseLocaleNumber parses a numeric string that may use locale separators:
//
//	"1.234,56"  -> 1234.56 (dot thousands, comma decimal)
//	"1234,56"   -> 1234.56 (decimal comma)
//	"1.234.567" -> 1234567 (dot thousands)
//
// ok is false when the text is not a finite number.
func TryParseLocaleNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return parseNumeric(s)
}

// ParseCell converts a raw row value to a number. Numbers are used as-is,
// strings follow the locale rules and anything else is converted through its
// textual form without separator handling.
func ParseCell(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		return parseNumeric(n.String())
	case string:
		return TryParseLocaleNumber(n)
	case decimal.Decimal:
		f, _ := n.Float64()
		return finite(f)
	case *decimal.Decimal:
		if n == nil {
			return 0, false
		}
		f, _ := n.Float64()
		return finite(f)
	case decimal.NullDecimal:
		if !n.Valid {
			return 0, false
		}
		f, _ := n.Decimal.Float64()
		return finite(f)
	case bool:
		return 0, false
	case fmt.Stringer:
		return parseNumeric(n.String())
	default:
		return parseNumeric(fmt.Sprint(n))
	}
}

// CellValue is ParseCell with the zero fallback applied.
func CellValue(v any) float64 {
	if f, ok := ParseCell(v); ok {
		return f
	}
	return 0
}

// parseNumeric converts trimmed text the way a browser Number() call does:
// blank is zero, 0x/0o/0b prefixes are integers, and anything non-finite fails.
func parseNumeric(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, true
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if strings.Contains(s, "_") {
				return 0, false
			}
			u, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(u), true
		}
	}

	lower := strings.ToLower(s)
	if strings.Contains(s, "_") || strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(lower, "x") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// formatNumber renders a float the way it reads in a browser.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
