package formula

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatKind selects how a numeric value is displayed
type FormatKind string

const (
	FormatPlain    FormatKind = ""
	FormatNumber   FormatKind = "number"
	FormatCurrency FormatKind = "currency"
	FormatPercent  FormatKind = "percent"
)

// IsNumeric reports whether values of this kind must parse as numbers
func (k FormatKind) IsNumeric() bool {
	return k == FormatNumber || k == FormatCurrency || k == FormatPercent
}

// Locale carries the separators and currency used to parse and display
// numbers for one language tag.
type Locale struct {
	Tag      language.Tag
	Decimal  rune
	Group    rune
	Currency string
}

// DefaultLocale is en-US
var DefaultLocale = NewLocale(language.AmericanEnglish)

// ParseLocale builds a Locale from a BCP-47 tag such as "de-DE"
func ParseLocale(tag string) (*Locale, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, err
	}
	return NewLocale(t), nil
}

// NewLocale discovers separators by formatting a probe number through
// the CLDR data for tag.
func NewLocale(tag language.Tag) *Locale {
	l := &Locale{Tag: tag, Decimal: '.', Group: ','}

	probe := message.NewPrinter(tag).Sprintf("%v", number.Decimal(1234567.5, number.MinFractionDigits(1)))
	// expected shape: 1<group>234<group>567<decimal>5
	runes := []rune(probe)
	if len(runes) >= 2 {
		if d := runes[len(runes)-2]; !unicode.IsDigit(d) {
			l.Decimal = d
		}
		if g := runes[1]; !unicode.IsDigit(g) && g != l.Decimal {
			l.Group = g
		}
	}
	if l.Group == l.Decimal {
		l.Group = '.'
		if l.Decimal == '.' {
			l.Group = ','
		}
	}

	if unit, conf := currency.FromTag(tag); conf != language.No {
		l.Currency = unit.String()
	}
	return l
}

// String returns the BCP-47 tag
func (l *Locale) String() string {
	return l.Tag.String()
}

// NewCollator returns a case-insensitive collator for text sort keys.
// collators are not safe for concurrent use, so callers get their own.
func (l *Locale) NewCollator() *collate.Collator {
	return collate.New(l.Tag, collate.IgnoreCase)
}

// ParseNumber parses user input. the locale form ("1.234,5" in German) is
// tried first, then the plain Go form ("1234.5"). a trailing % divides
// by 100.
func (l *Locale) ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	scale := 1.0
	if strings.HasSuffix(s, "%") {
		scale = 100
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	if v, ok := l.parseLocalized(s); ok {
		return v / scale, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v / scale, true
}

// parseLocalized accepts an optional sign, an integer part whose group
// separators (if any) split it into groups of three, and an optional
// fraction after the locale decimal separator.
func (l *Locale) parseLocalized(s string) (float64, bool) {
	var b strings.Builder
	rest := s
	if r, size := utf8.DecodeRuneInString(rest); r == '-' || r == '+' {
		b.WriteRune(r)
		rest = rest[size:]
	}

	intPart, fracPart, hasFrac := strings.Cut(rest, string(l.Decimal))
	if intPart == "" {
		return 0, false
	}

	groups := strings.Split(intPart, string(l.Group))
	for i, g := range groups {
		if g == "" || !allDigits(g) {
			return 0, false
		}
		if i > 0 && len(g) != 3 {
			return 0, false
		}
		if i == 0 && len(groups) > 1 && len(g) > 3 {
			return 0, false
		}
		b.WriteString(g)
	}

	if hasFrac {
		if fracPart == "" || !allDigits(fracPart) {
			return 0, false
		}
		b.WriteByte('.')
		b.WriteString(fracPart)
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// FormatPlain renders a formula result without grouping, using the
// locale decimal separator and trimming float noise.
func (l *Locale) FormatPlain(v float64) string {
	v = roundTo(v, 10)
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if l.Decimal != '.' {
		s = strings.Replace(s, ".", string(l.Decimal), 1)
	}
	return s
}

// Format renders v for the given display kind
func (l *Locale) Format(kind FormatKind, v float64) string {
	switch kind {
	case FormatNumber:
		return l.grouped(v, 2, true)
	case FormatCurrency:
		s := l.grouped(v, 2, true)
		if l.Currency != "" {
			s += " " + l.Currency
		}
		return s
	case FormatPercent:
		return l.grouped(v*100, 2, false) + "%"
	default:
		return l.FormatPlain(v)
	}
}

// grouped formats v with group separators and up to decimals fraction
// digits, padded when fixed is set.
func (l *Locale) grouped(v float64, decimals int, fixed bool) string {
	v = roundTo(v, decimals)
	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")
	if !fixed {
		fracPart = strings.TrimRight(fracPart, "0")
	}

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune(l.Group)
		}
		b.WriteRune(ch)
	}
	if fracPart != "" {
		b.WriteRune(l.Decimal)
		b.WriteString(fracPart)
	}
	return b.String()
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1e15 {
		return v
	}
	p := math.Pow(10, float64(places))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
