package identity

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	addr, err := Parse("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr.String())
	assert.False(t, addr.IsZero())
}

func TestParse_Normalizes(t *testing.T) {
	upper, err := Parse("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")
	require.NoError(t, err)
	lower, err := Parse("0xabcdef1234567890abcdef1234567890abcdef12")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", upper.String())
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "0x123", "not-an-address", "0xzz11111111111111111111111111111111111111"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidAddress, "input %q", s)
	}
}

func TestParse_ZeroAllowed(t *testing.T) {
	addr, err := Parse("0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, addr.IsZero())
}

func TestParseParticipant_RejectsZero(t *testing.T) {
	_, err := ParseParticipant("0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = ParseParticipant("0x2222222222222222222222222222222222222222")
	assert.NoError(t, err)
}

func TestAddress_JSONRoundTrip(t *testing.T) {
	addr := MustParse("0x3333333333333333333333333333333333333333")

	data, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.Equal(t, `"0x3333333333333333333333333333333333333333"`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)
}

func TestFromCommon(t *testing.T) {
	c := common.HexToAddress("0x4444444444444444444444444444444444444444")
	addr := FromCommon(c)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", addr.String())
	assert.Equal(t, c, addr.Common())
	assert.False(t, addr.IsZero())

	assert.True(t, FromCommon(common.Address{}).IsZero())
}

func TestZeroValue(t *testing.T) {
	var addr Address
	assert.True(t, addr.IsZero())
	assert.Equal(t, Zero, addr)
}
