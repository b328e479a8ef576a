package flaunch

// Lottery account layout. The bitmask payload is preceded by a fixed-size
// header; the constants below are protocol invariants.
const (
	lotteryDiscriminatorLen = 8
	lotterySaleIDLen        = 32
	lotteryBumpLen          = 1
	lotteryMaskLenBytes     = 8

	// LotteryHeaderSize is the offset of the first bitmask payload byte.
	LotteryHeaderSize = lotteryDiscriminatorLen + lotterySaleIDLen + lotteryBumpLen + lotteryMaskLenBytes
)

// IsWinner decodes a participant's winner status from the raw lottery
// account bytes and their ticket sequence number.
//
// A participant that already holds the redemption token through a path
// other than the lottery (directBalance > 0) is a winner regardless of
// mask content. Otherwise the mask must be present, the ticket must have
// an assigned sequence number and the lottery must have resolved
// (phaseThreeStarted); anything missing means not a winner.
//
// Bit order within the payload is big-endian per byte: sequence number 0
// is the most-significant bit of the first payload byte. A sequence number
// beyond the mask's allocated capacity is a configuration error, never a
// silent false.
func IsWinner(ticket *Ticket, mask []byte, phaseThreeStarted bool, directBalance uint64) (bool, error) {
	if directBalance > 0 {
		return true, nil
	}
	if len(mask) <= LotteryHeaderSize || ticket == nil || !ticket.SeqAssigned || !phaseThreeStarted {
		return false, nil
	}

	idx := LotteryHeaderSize + int(ticket.Seq/8)
	if idx >= len(mask) {
		return false, NewConfigurationError("ticket seq %d exceeds lottery mask capacity %d", ticket.Seq, (len(mask)-LotteryHeaderSize)*8)
	}

	positionFromRight := 7 - ticket.Seq%8
	return mask[idx]&(1<<positionFromRight) != 0, nil
}
