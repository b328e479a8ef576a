package flaunch

import (
	"math/big"
)

// All monetary amounts are integers in the ledger's smallest currency unit
// (lamports).

// TicketState describes the lifecycle position of a participant's ticket.
// Withdrawn is terminal: a withdrawn ticket cannot be mutated again.
type TicketState int

const (
	TicketUnpunched TicketState = iota
	TicketPunched
	TicketWithdrawn
)

func (ts TicketState) String() string {
	switch ts {
	case TicketUnpunched:
		return "unpunched"
	case TicketPunched:
		return "punched"
	case TicketWithdrawn:
		return "withdrawn"
	}
	return "unknown"
}

// AntiRugSetting holds the optional goodwill-refund parameters of a sale.
// If more than TokenRequirement items remain unredeemed as of
// SelfDestructDate, punched tickets may claim back ReserveBP basis points
// of their contribution.
type AntiRugSetting struct {
	ReserveBP        uint64
	TokenRequirement uint64
	// SelfDestructDate is a unix timestamp in seconds. Zero means unset.
	SelfDestructDate int64
}

// ReserveLamports returns the portion of the treasury held in the locked
// anti-rug reserve.
func (a *AntiRugSetting) ReserveLamports(treasury uint64) uint64 {
	r := new(big.Int).SetUint64(treasury)
	r.Mul(r, new(big.Int).SetUint64(a.ReserveBP))
	r.Div(r, big.NewInt(10000))
	return r.Uint64()
}

// SaleConfig holds the immutable parameters set at sale creation. All
// timestamps are unix seconds as stored on chain; zero means not configured.
type SaleConfig struct {
	PriceRangeStart uint64
	PriceRangeEnd   uint64
	TickSize        uint64
	Fee             uint64
	NumberOfTokens  uint64

	PhaseOneStart   int64
	PhaseOneEnd     int64
	PhaseTwoEnd     int64
	LotteryDuration int64

	AntiRug *AntiRugSetting
}

// Validate checks the invariants the on-chain program enforces at sale
// creation. A config that fails validation should be treated as a
// configuration error, not a crash.
func (c *SaleConfig) Validate() error {
	if c.PriceRangeStart > c.PriceRangeEnd {
		return NewConfigurationError("price range start %v exceeds end %v", c.PriceRangeStart, c.PriceRangeEnd)
	}
	if c.TickSize == 0 {
		return NewConfigurationError("tick size is zero")
	}
	if c.PhaseOneStart != 0 && c.PhaseOneEnd != 0 && c.PhaseOneStart >= c.PhaseOneEnd {
		return NewConfigurationError("phase one start %v is not before phase one end %v", c.PhaseOneStart, c.PhaseOneEnd)
	}
	if c.PhaseOneEnd != 0 && c.PhaseTwoEnd != 0 && c.PhaseOneEnd >= c.PhaseTwoEnd {
		return NewConfigurationError("phase one end %v is not before phase two end %v", c.PhaseOneEnd, c.PhaseTwoEnd)
	}
	return nil
}

// SaleState mirrors the authority-controlled mutable sale account.
type SaleState struct {
	// CurrentMedian is the clearing price derived from submitted bids.
	// Zero means the median has not been derived yet.
	CurrentMedian     uint64
	NumberTicketsSold uint64
	TreasuryBalance   uint64
	// PhaseThreeStarted flips when the authority moves the sale from the
	// lottery into the post-lottery phase.
	PhaseThreeStarted bool
	TokenMint         AccountID
}

// Ticket mirrors a participant's bid record. The sequence number is
// assigned by the ledger at first bid and is stable for the ticket's
// lifetime; it indexes the participant's bit in the lottery bitmask.
type Ticket struct {
	Amount      uint64
	Seq         uint64
	SeqAssigned bool
	State       TicketState
}

// SecondaryLaunch mirrors the redemption-stage collaborator state,
// consumed read-only.
type SecondaryLaunch struct {
	// GoLiveDate is a unix timestamp in seconds. Zero means unset.
	GoLiveDate int64
	IsActive   bool
	IsSoldOut  bool
}
