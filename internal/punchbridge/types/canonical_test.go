package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

func TestCanonicalDeviceID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"CFM-0022", "22"},
		{"0022", "22"},
		{"22", "22"},
		{"N/A", ""},
		{"", ""},
		{"000", "0"},
		{" 7 ", "7"},
		{"A1B2C3", "123"},
		{"000123456789012345678901234567890", "123456789012345678901234567890"},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, types.CanonicalDeviceID(c.in), "CanonicalDeviceID(%q)", c.in)
	}
}

func TestDigitsOnly_KeepsLeadingZeros(t *testing.T) {
	assert.Equal(t, "0022", types.DigitsOnly("CFM-0022"))
	assert.Equal(t, "", types.DigitsOnly("N/A"))
}

func TestPunchValidate(t *testing.T) {
	assert.NoError(t, types.Punch{RawDeviceUserID: "CFM-0022"}.Validate())
	assert.ErrorIs(t, types.Punch{RawDeviceUserID: "N/A"}.Validate(), types.ErrInvalidUserID)
	assert.ErrorIs(t, types.Punch{}.Validate(), types.ErrInvalidUserID)
}
