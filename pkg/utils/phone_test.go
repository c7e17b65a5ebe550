package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"+7", ""},
		{"7", ""},
		{"8", ""},
		{"8 (912) 345-67-89", "+79123456789"},
		{"+7 (912) 345-67-89", "+79123456789"},
		{"79123456789", "+79123456789"},
		{"89123456789", "+79123456789"},
		{"+79123456789", "+79123456789"},
		{"8.912.345.67.89", "+79123456789"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizePhoneInvalid(t *testing.T) {
	for _, in := range []string{
		"123",
		"+1 (912) 345-67-89",
		"8912345678",      // too short
		"891234567890",    // too long
		"8 (912) 345-67-8x",
		"abc",
	} {
		_, err := NormalizePhone(in)
		assert.ErrorIs(t, err, ErrInvalidPhone, "input %q", in)
	}
}
