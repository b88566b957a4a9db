package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    DateOrder
		wantErr bool
	}{
		{in: "day-first", want: DayFirst},
		{in: "Month-First", want: MonthFirst},
		{in: " iso ", want: ISO},
		{in: "", wantErr: true},
		{in: "dmy", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDateOrder(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeParser(t *testing.T) {
	at := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
	}

	tests := []struct {
		name    string
		order   DateOrder
		value   string
		want    time.Time
		wantErr bool
	}{
		{name: "day first", order: DayFirst, value: "03/01/2024 14:30", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "day first seconds", order: DayFirst, value: "3/1/2024 14:30:15", want: at(2024, 1, 3, 14, 30, 15)},
		{name: "day first dashes", order: DayFirst, value: "03-01-2024 09:05", want: at(2024, 1, 3, 9, 5, 0)},
		{name: "day first dots", order: DayFirst, value: "03.01.2024", want: at(2024, 1, 3, 0, 0, 0)},
		{name: "day first twelve hour", order: DayFirst, value: "3/1/2024 2:30 PM", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "day first short year", order: DayFirst, value: "3/1/24", want: at(2024, 1, 3, 0, 0, 0)},
		{name: "day first thirteenth", order: DayFirst, value: "13/01/2024 10:00", want: at(2024, 1, 13, 10, 0, 0)},
		{name: "month first", order: MonthFirst, value: "01/03/2024 14:30", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "month first rejects day thirteen as month", order: MonthFirst, value: "13/01/2024 10:00", wantErr: true},
		{name: "day first rejects month thirteen", order: DayFirst, value: "01/13/2024 10:00", wantErr: true},
		{name: "iso in day first", order: DayFirst, value: "2024-01-03 14:30:00", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "iso in month first", order: MonthFirst, value: "2024-01-03T14:30", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "iso", order: ISO, value: "2024-01-03 14:30:00", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "iso with offset", order: ISO, value: "2024-01-03T14:30:00+01:00", want: at(2024, 1, 3, 13, 30, 0)},
		{name: "iso rejects slashed day first", order: ISO, value: "03/01/2024 14:30", wantErr: true},
		{name: "extra whitespace", order: DayFirst, value: "  03/01/2024    14:30 ", want: at(2024, 1, 3, 14, 30, 0)},
		{name: "garbage", order: DayFirst, value: "not-a-date", wantErr: true},
		{name: "blank", order: DayFirst, value: "   ", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewTimeParser(tt.order, time.UTC)
			require.NoError(t, err)

			got, err := p.Parse(tt.value)
			if tt.wantErr {
				var tsErr *TimestampParseError
				require.True(t, errors.As(err, &tsErr), "want *TimestampParseError, got %v", err)
				assert.Equal(t, tt.value, tsErr.Value)
				assert.Equal(t, tt.order, tsErr.DateOrder)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestTimeParserLocation(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	p, err := NewTimeParser(DayFirst, zone)
	require.NoError(t, err)

	got, err := p.Parse("03/01/2024 14:30")
	require.NoError(t, err)

	assert.Equal(t, zone, got.Location())
	assert.True(t, time.Date(2024, 1, 3, 12, 30, 0, 0, time.UTC).Equal(got))
}

func TestNewTimeParserRequiresOrder(t *testing.T) {
	_, err := NewTimeParser("", time.UTC)
	require.Error(t, err)

	_, err = NewTimeParser("guess", time.UTC)
	require.Error(t, err)
}
