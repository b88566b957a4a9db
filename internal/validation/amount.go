package validation

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errNotANumber = errors.New("not a number")

// currencyTokens are stripped from amounts wherever they appear.
var currencyTokens = []string{"GBP", "EUR", "USD", "£", "€", "$", "¥"}

// ParseAmount normalizes a monetary cell. It accepts plain numbers,
// thousands-separated strings, currency-prefixed or -suffixed strings and
// accounting negatives such as "(1,234.50)". A blank cell is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	upper := strings.ToUpper(s)
	for _, token := range currencyTokens {
		upper = strings.ReplaceAll(upper, token, "")
	}

	var b strings.Builder
	for _, r := range upper {
		switch r {
		case ',', ' ', '\u00a0', '\u202f', '\'':
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if s == "" || strings.ContainsAny(s, "-+") {
		return decimal.Zero, errNotANumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotANumber
	}
	if negative {
		d = d.Neg()
	}

	return d, nil
}
