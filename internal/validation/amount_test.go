package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "1234.56", want: "1234.56"},
		{raw: "  12 ", want: "12"},
		{raw: "1,234.56", want: "1234.56"},
		{raw: "£1,234.56", want: "1234.56"},
		{raw: "GBP 12.00", want: "12"},
		{raw: "gbp 12.00", want: "12"},
		{raw: "12.00 EUR", want: "12"},
		{raw: "€ 1 000", want: "1000"},
		{raw: "1 000.50", want: "1000.5"},
		{raw: "(1,234.50)", want: "-1234.5"},
		{raw: "(£5.00)", want: "-5"},
		{raw: "-£5.00", want: "-5"},
		{raw: "£-5.00", want: "-5"},
		{raw: "+3", want: "3"},
		{raw: "0.001", want: "0.001"},
		{raw: "", want: "0"},
		{raw: "abc", wantErr: true},
		{raw: "12-3", wantErr: true},
		{raw: "--5", wantErr: true},
		{raw: "£", wantErr: true},
		{raw: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, got.IsZero(), "failed parse must yield zero")
				return
			}
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}
