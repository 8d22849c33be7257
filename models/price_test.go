package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"plain integer", "1000", 1000},
		{"dot decimal", "19.99", 19.99},
		{"comma decimal", "19,99", 19.99},
		{"single digit comma decimal", "12,5", 12.5},
		{"comma thousands", "1,000", 1000},
		{"multi comma thousands", "1,234,567", 1234567},
		{"eu thousands and decimal", "1.200,50", 1200.50},
		{"us thousands and decimal", "1,200.50", 1200.50},
		{"multi dot thousands", "1.000.000", 1000000},
		{"currency symbol prefix", "$19.99", 19.99},
		{"currency symbol suffix", "19,99 €", 19.99},
		{"currency code", "EUR 1.299,00", 1299},
		{"nbsp grouping", "1\u00a0299,00", 1299},
		{"space grouping", "1 299,00", 1299},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePrice(tc.raw)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestParsePriceErrors(t *testing.T) {
	for _, raw := range []string{"", "free", "price on request", "-19.99", "--"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParsePrice(raw)
			assert.Error(t, err)
		})
	}
}
