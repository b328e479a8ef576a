package flaunch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountIDRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var id AccountID
	for i := range id {
		id[i] = byte(i)
	}

	parsed, err := ParseAccountID(id.String())
	require.Nil(err)
	assert.Equal(id, parsed)
}

func TestParseAccountIDInvalid(t *testing.T) {
	assert := assert.New(t)

	// invalid base58 characters
	_, err := ParseAccountID("0OIl")
	assert.NotNil(err)

	// wrong length
	_, err = ParseAccountID("abc")
	assert.NotNil(err)
}

func TestAccountIDIsZero(t *testing.T) {
	assert := assert.New(t)

	assert.True(AccountID{}.IsZero())
	assert.False(AccountID{1}.IsZero())
}
