package flaunch

import "time"

// feeSafetyMargin is added on top of bid + fee when checking spendable
// balance. It covers transaction fees and rent for the ticket account.
// 0.01 in whole-currency terms, expressed in base units.
const feeSafetyMargin uint64 = 10_000_000

// The predicates below are pure and side-effect free. They gate the
// mutating actions of the controller and are evaluated against a single
// snapshot so phase, ticket and balance views cannot drift apart.

// CanPlaceOrChangeBid reports whether a bid of the given amount may be
// placed or changed. Bids are open during the bidding phase. During the
// grace period existing tickets may still adjust; a newcomer may only opt
// in at exactly the current median price. A withdrawn ticket is terminal
// and can never bid again.
func CanPlaceOrChangeBid(phase Phase, ticket *Ticket, amount uint64, state *SaleState) bool {
	if ticket != nil && ticket.State == TicketWithdrawn {
		return false
	}

	switch phase {
	case PhaseBidding:
		return true
	case PhaseGracePeriod:
		if ticket != nil {
			return true
		}
		return state != nil && state.CurrentMedian > 0 && amount == state.CurrentMedian
	}
	return false
}

// BelowMedian reports whether the ticket's bid sits below the current
// median. During bidding and the grace period this flags an at-risk bid;
// after the lottery it flags a bid that was excluded from the raffle. It
// is only meaningful once the median has been derived.
func BelowMedian(phase Phase, ticket *Ticket, state *SaleState) bool {
	if state == nil || state.CurrentMedian == 0 {
		return false
	}
	if ticket == nil || ticket.State == TicketWithdrawn {
		return false
	}

	switch phase {
	case PhaseBidding, PhaseGracePeriod, PhaseLotteryPending, PhasePostLottery:
		return ticket.Amount < state.CurrentMedian
	}
	return false
}

// CanWithdraw reports whether the non-winner refund path is open. If no
// lottery has been run yet, winner is necessarily false and withdrawal
// opens as soon as the phase passes the lottery.
func CanWithdraw(phase Phase, ticket *Ticket, winner bool) bool {
	if ticket == nil || ticket.State == TicketWithdrawn {
		return false
	}
	if phase < PhasePostLottery {
		return false
	}
	return !winner
}

// CanPunch reports whether a winning ticket may be punched. Valid in the
// post-lottery and redemption phases.
func CanPunch(phase Phase, ticket *Ticket, winner bool) bool {
	if ticket == nil || ticket.State != TicketUnpunched {
		return false
	}
	if phase != PhasePostLottery && phase != PhaseRedemption {
		return false
	}
	return winner
}

// CanMint reports whether the participant may redeem for the
// limited-supply item. A participant whose ticket is punched and whose
// entitlement balance is already consumed has fully redeemed.
func CanMint(phase Phase, ticket *Ticket, winner bool, launch *SecondaryLaunch, directBalance uint64) bool {
	if phase != PhaseRedemption {
		return false
	}
	if launch == nil || !launch.IsActive || launch.IsSoldOut {
		return false
	}
	if !winner {
		return false
	}
	if ticket != nil && ticket.State == TicketPunched && directBalance == 0 {
		return false
	}
	return true
}

// CanAntiRugRefund reports whether the time-gated goodwill refund is
// available. It requires a configured self-destruct date, a punched ticket
// (redemption was attempted) and the deadline to have passed. This path
// must remain available even after other paths are exhausted.
func CanAntiRugRefund(cfg *SaleConfig, ticket *Ticket, now time.Time) bool {
	if cfg == nil || cfg.AntiRug == nil || cfg.AntiRug.SelfDestructDate <= 0 {
		return false
	}
	if ticket == nil || ticket.State != TicketPunched {
		return false
	}
	return now.Unix() >= cfg.AntiRug.SelfDestructDate
}

// InsufficientFunds reports whether the participant's spendable balance
// plus the amount already locked in their ticket cannot cover the
// requested bid, the protocol fee and the safety margin. An existing
// ticket's amount counts because a bid change only moves the difference.
func InsufficientFunds(balance uint64, ticket *Ticket, amount uint64, cfg *SaleConfig) bool {
	if cfg == nil {
		return true
	}

	available := balance
	if ticket != nil && ticket.State != TicketWithdrawn {
		available += ticket.Amount
	}

	return available < amount+cfg.Fee+feeSafetyMargin
}
