package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{12345, "123.45"},
		{-150, "-1.50"},
		{1<<63 - 1, "92233720368547758.07"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.minor))
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr error
	}{
		{name: "whole", in: "5", want: 500},
		{name: "one decimal", in: "123.4", want: 12340},
		{name: "two decimals", in: "0.01", want: 1},
		{name: "negative", in: "-2.50", want: -250},
		{name: "trailing zeros beyond precision", in: "1.500", want: 150},
		{name: "too precise", in: "1.005", wantErr: ErrTooPrecise},
		{name: "garbage", in: "ten", wantErr: ErrInvalidAmount},
		{name: "overflow", in: "92233720368547758.08", wantErr: ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
