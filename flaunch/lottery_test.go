package flaunch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func seqTicket(seq uint64) *Ticket {
	return &Ticket{Amount: 5_000_000_000, Seq: seq, SeqAssigned: true}
}

func TestIsWinnerAllZeroMask(t *testing.T) {
	assert := assert.New(t)

	mask := make([]byte, LotteryHeaderSize+4)

	for seq := uint64(0); seq < 32; seq++ {
		won, err := IsWinner(seqTicket(seq), mask, true, 0)
		assert.Nil(err)
		assert.False(won)
	}
}

// Sequence number 0 maps to the most-significant bit of the first payload
// byte.
func TestIsWinnerBitOrder(t *testing.T) {
	assert := assert.New(t)

	mask := make([]byte, LotteryHeaderSize+1)
	mask[LotteryHeaderSize] = 0x80

	won, err := IsWinner(seqTicket(0), mask, true, 0)
	assert.Nil(err)
	assert.True(won)

	for seq := uint64(1); seq < 8; seq++ {
		won, err := IsWinner(seqTicket(seq), mask, true, 0)
		assert.Nil(err)
		assert.False(won)
	}
}

func TestIsWinnerSecondByte(t *testing.T) {
	assert := assert.New(t)

	mask := make([]byte, LotteryHeaderSize+2)
	// seq 9 -> second payload byte, bit position 6 from the left
	mask[LotteryHeaderSize+1] = 0x40

	won, err := IsWinner(seqTicket(9), mask, true, 0)
	assert.Nil(err)
	assert.True(won)

	won, err = IsWinner(seqTicket(8), mask, true, 0)
	assert.Nil(err)
	assert.False(won)
}

// A redemption-token balance held outside the lottery path short-circuits
// to winner regardless of mask content.
func TestIsWinnerDirectBalance(t *testing.T) {
	assert := assert.New(t)

	won, err := IsWinner(nil, nil, false, 1)
	assert.Nil(err)
	assert.True(won)

	mask := make([]byte, LotteryHeaderSize+1)
	won, err = IsWinner(seqTicket(0), mask, true, 42)
	assert.Nil(err)
	assert.True(won)
}

func TestIsWinnerMissingInputs(t *testing.T) {
	assert := assert.New(t)

	mask := make([]byte, LotteryHeaderSize+1)
	mask[LotteryHeaderSize] = 0xff

	// no mask
	won, err := IsWinner(seqTicket(0), nil, true, 0)
	assert.Nil(err)
	assert.False(won)

	// header only, empty payload
	won, err = IsWinner(seqTicket(0), make([]byte, LotteryHeaderSize), true, 0)
	assert.Nil(err)
	assert.False(won)

	// no ticket
	won, err = IsWinner(nil, mask, true, 0)
	assert.Nil(err)
	assert.False(won)

	// seq not assigned
	won, err = IsWinner(&Ticket{Amount: 1}, mask, true, 0)
	assert.Nil(err)
	assert.False(won)

	// lottery not resolved yet
	won, err = IsWinner(seqTicket(0), mask, false, 0)
	assert.Nil(err)
	assert.False(won)
}

// A sequence number beyond the mask's allocated capacity is a fatal
// configuration error, never a swallowed false.
func TestIsWinnerSeqOutOfRange(t *testing.T) {
	require := require.New(t)

	mask := make([]byte, LotteryHeaderSize+2)

	_, err := IsWinner(seqTicket(16), mask, true, 0)
	require.NotNil(err)

	var cfgErr *ConfigurationError
	require.ErrorAs(err, &cfgErr)
}

func TestIsWinnerMatchesReferenceDecode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "payload")
		seq := rapid.Uint64Range(0, uint64(len(payload)*8-1)).Draw(t, "seq")

		mask := make([]byte, LotteryHeaderSize+len(payload))
		copy(mask[LotteryHeaderSize:], payload)

		won, err := IsWinner(seqTicket(seq), mask, true, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := payload[seq/8]>>(7-seq%8)&1 == 1
		if won != want {
			t.Fatalf("seq=%v got %v want %v", seq, won, want)
		}
	})
}
