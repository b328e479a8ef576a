package flaunch

import "time"

// Phase is the discrete protocol phase derived from wall-clock time, the
// phase boundaries stored on chain and the secondary launch's go-live
// time. It is derived on every evaluation and never persisted.
type Phase int

const (
	// PhaseUnknown signals missing or inconsistent configuration. Callers
	// must disable all mutating actions; it is never treated as a crash.
	PhaseUnknown Phase = iota
	PhasePreSale
	PhaseBidding
	PhaseGracePeriod
	PhaseLotteryPending
	PhasePostLottery
	PhaseRedemption
)

func (p Phase) String() string {
	switch p {
	case PhasePreSale:
		return "presale"
	case PhaseBidding:
		return "bidding"
	case PhaseGracePeriod:
		return "grace period"
	case PhaseLotteryPending:
		return "lottery pending"
	case PhasePostLottery:
		return "post lottery"
	case PhaseRedemption:
		return "redemption"
	}
	return "unknown"
}

// ResolvePhase maps sale config, sale state, secondary launch state and the
// current time to exactly one phase. It is total and never panics.
//
// Evaluation order matters and the first match wins. Boundaries are
// exclusive on the start side and inclusive on the end side: at
// now == PhaseOneEnd the sale is still in the bidding phase.
func ResolvePhase(cfg *SaleConfig, state *SaleState, launch *SecondaryLaunch, now time.Time) Phase {
	if cfg == nil || state == nil {
		return PhaseUnknown
	}

	cur := now.Unix()

	if cfg.PhaseOneStart > 0 && cur < cfg.PhaseOneStart {
		return PhasePreSale
	}
	if cfg.PhaseOneEnd > 0 && cur <= cfg.PhaseOneEnd {
		return PhaseBidding
	}
	if cfg.PhaseTwoEnd > 0 && cur <= cfg.PhaseTwoEnd {
		return PhaseGracePeriod
	}
	if !state.PhaseThreeStarted {
		return PhaseLotteryPending
	}
	if launch != nil && launch.GoLiveDate > 0 && cur > launch.GoLiveDate {
		return PhaseRedemption
	}
	return PhasePostLottery
}

// SecondaryPredatesSale reports whether the secondary launch was scheduled
// to go live before the bidding grace period ends. A go-live exactly equal
// to PhaseTwoEnd counts as not predating, i.e. the secondary phase is
// considered active.
func SecondaryPredatesSale(cfg *SaleConfig, launch *SecondaryLaunch) bool {
	if cfg == nil || launch == nil {
		return false
	}
	return launch.GoLiveDate > 0 && cfg.PhaseTwoEnd > 0 && launch.GoLiveDate < cfg.PhaseTwoEnd
}

// LotteryEndEstimate returns the expected end of the lottery phase, used
// for countdown display while the raffle runs.
func LotteryEndEstimate(cfg *SaleConfig) (time.Time, bool) {
	if cfg == nil || cfg.PhaseTwoEnd <= 0 {
		return time.Time{}, false
	}
	return time.Unix(cfg.PhaseTwoEnd+cfg.LotteryDuration, 0), true
}
