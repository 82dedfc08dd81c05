package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMonetaryValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"full brazilian format", "R$ 1.234,56", 1234.56, true},
		{"symbol and comma", "R$ 50,00", 50.00, true},
		{"thousands only", "1.234,56", 1234.56, true},
		{"comma decimal only", "150,75", 150.75, true},
		{"plain integer", "300", 300, true},
		{"plain dot decimal", "12.5", 12.5, true},
		{"millions", "R$ 1.234.567,89", 1234567.89, true},
		{"empty", "", 0, false},
		{"whitespace only", "   ", 0, false},
		{"symbol only", "R$ ", 0, false},
		{"garbage", "abc", 0, false},
		{"mixed garbage", "R$ abc,12", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMonetaryValue(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
