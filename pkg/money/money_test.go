package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "210", want: "210.00"},
		{in: "210.5", want: "210.50"},
		{in: " 1,250.75 SAR", want: "1250.75"},
		{in: "300.00", want: "300.00"},
		{in: "0", want: "0.00"},
		{in: "10.125", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisplayRoundsHalfToEven(t *testing.T) {
	assert.Equal(t, "2.12", Display(decimal.RequireFromString("2.125")))
	assert.Equal(t, "2.14", Display(decimal.RequireFromString("2.135")))
}

func TestLenient(t *testing.T) {
	d, ok := Lenient("")
	assert.True(t, ok)
	assert.True(t, d.IsZero())

	d, ok = Lenient("n/a")
	assert.False(t, ok)
	assert.True(t, d.IsZero())

	d, ok = Lenient("99.9")
	assert.True(t, ok)
	assert.Equal(t, "99.90", Store(d))
}
