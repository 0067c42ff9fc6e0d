package importer

// coerce.go turns loosely typed cell values into the Go values the executor
// writes. Spreadsheet exports are messy: numbers carry thousands separators
// or unit suffixes, dates come in regional layouts, and formula prefixes
// (="...") survive copy and paste. Every helper reports whether it found a
// usable value so callers can apply defaults.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot decides the century of two-digit years: a year that
// would land more than this many years in the future goes back 100 years.
var TwoDigitYearPivot = 20

var (
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "20060102",
		time.RFC3339,
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
)

// unitSuffixes are stripped from numeric cells such as "12.5 kg".
var unitSuffixes = []string{"kg", "cm", "m3", "m³", "mm", "m"}

// CleanCell removes CSV artifacts from a numeric, flag or date cell:
// surrounding whitespace, Excel formula prefixes and wrapping quotes. It is
// too aggressive for free text; see textValue.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// textValue renders any cell value as trimmed text. nil becomes "". Only a
// whole-cell ="..." wrapper or a matched pair of surrounding quotes is
// removed; quotes and = signs inside free text are kept.
func textValue(v any) string {
	s := strings.TrimSpace(cellString(v))

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		return strings.TrimSpace(s[2 : len(s)-1])
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// scalarText is the text a number, flag or date is parsed from.
func scalarText(v any) string {
	return CleanCell(cellString(v))
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// numberValue parses a decimal, tolerating thousands separators, unit
// suffixes and accounting negatives "(12.5)".
func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		return 0, false
	}

	s := strings.ToLower(scalarText(v))
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, unit := range unitSuffixes {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit))
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// intValue parses a whole number. Fractions are rejected.
func intValue(v any) (int, bool) {
	f, ok := numberValue(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// flagValue reports whether v spells TRUE, ignoring case. Everything else,
// including "yes" and "1", is false.
func flagValue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return strings.EqualFold(scalarText(v), "TRUE")
}

// dateValue parses a calendar date in one of the supported layouts.
func dateValue(v any, now time.Time) (time.Time, bool) {
	s := scalarText(v)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}

	pivot := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return truncateDay(t), true
		}
	}

	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
