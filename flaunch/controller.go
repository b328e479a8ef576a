package flaunch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/glog"

	"github.com/phantasia-sports/fairlaunch/monitor"
)

const defaultTxTimeout = 60 * time.Second

// Number of refresh attempts after an unresolved timeout before giving up
// and leaving rediscovery to the next poll.
const timeoutRefreshRetries = 3

// ControllerConfig identifies the sale and the acting participant.
type ControllerConfig struct {
	Sale        AccountID
	Participant AccountID

	// TxTimeout bounds the confirmation wait for each mutating action.
	TxTimeout time.Duration
}

// Controller orchestrates the mutating ticket actions against the external
// ledger, guarded by the eligibility rules. It holds the participant's
// current snapshot and replaces it wholesale after every refresh; the local
// view is a pure mirror of the ledger and is never speculatively updated
// before a confirmation.
//
// A single mutating action may be in flight at a time. A second trigger
// while one is pending is rejected locally with ErrActionInFlight, not
// queued. The read path (Refresh) may run concurrently with an in-flight
// action.
type Controller struct {
	cfg ControllerConfig

	query LedgerQuery
	mut   LedgerMutator
	conf  TxConfirmer
	tm    TimeManager

	// snapshot subscriptions
	feed  event.Feed
	scope event.SubscriptionScope

	mu       sync.Mutex
	inFlight bool
	snap     *Snapshot
}

// NewController creates a Controller for one sale and participant.
func NewController(cfg ControllerConfig, query LedgerQuery, mut LedgerMutator, conf TxConfirmer, tm TimeManager) *Controller {
	if cfg.TxTimeout == 0 {
		cfg.TxTimeout = defaultTxTimeout
	}

	return &Controller{
		cfg:   cfg,
		query: query,
		mut:   mut,
		conf:  conf,
		tm:    tm,
	}
}

// Subscribe delivers every new snapshot to sink until the subscription is
// unsubscribed or the controller is stopped.
func (c *Controller) Subscribe(sink chan<- *Snapshot) event.Subscription {
	return c.scope.Track(c.feed.Subscribe(sink))
}

// Stop closes all snapshot subscriptions.
func (c *Controller) Stop() {
	c.scope.Close()
}

// Snapshot returns the most recent snapshot, or nil before the first
// refresh.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snap
}

// Refresh re-reads all sale state from the ledger, recomputes the derived
// phase, winner flag and eligibility flags and publishes the new snapshot.
// It is read-only against the ledger and safe to call at any time.
func (c *Controller) Refresh(ctx context.Context) (*Snapshot, error) {
	cfg, state, err := c.query.GetSaleState(ctx, c.cfg.Sale)
	if err != nil {
		return nil, &NetworkError{Action: "refresh", Err: err}
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	ticket, err := c.query.GetTicket(ctx, c.cfg.Sale, c.cfg.Participant)
	if err != nil {
		return nil, &NetworkError{Action: "refresh", Err: err}
	}

	mask, err := c.query.GetLotteryMask(ctx, c.cfg.Sale)
	if err != nil {
		return nil, &NetworkError{Action: "refresh", Err: err}
	}

	launch, err := c.query.GetSecondaryLaunchState(ctx, c.cfg.Sale)
	if err != nil {
		return nil, &NetworkError{Action: "refresh", Err: err}
	}

	balance, err := c.query.GetBalance(ctx, c.cfg.Participant)
	if err != nil {
		return nil, &NetworkError{Action: "refresh", Err: err}
	}

	var directBalance uint64
	if state != nil && !state.TokenMint.IsZero() {
		directBalance, err = c.query.GetTokenBalance(ctx, state.TokenMint, c.cfg.Participant)
		if err != nil {
			// The token account may simply not exist yet
			glog.V(2).Infof("Problem getting redemption token balance participant=%v err=%q", c.cfg.Participant, err)
			directBalance = 0
		}
	}

	snap, err := newSnapshot(c.cfg.Sale, c.cfg.Participant, cfg, state, ticket, launch, mask, balance, directBalance, c.tm.Now())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	if monitor.Enabled {
		monitor.SetPhase(int64(snap.Phase))
	}

	c.feed.Send(snap)

	return snap, nil
}

// PlaceBid places a first bid or overwrites the existing one. The amount
// must lie within the sale's price range and on a tick boundary; violating
// inputs are rejected locally before any network call. Bid changes are
// idempotent overwrites of the same ticket and may safely be re-attempted
// by the user.
func (c *Controller) PlaceBid(ctx context.Context, amount uint64) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	snap, err := c.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Phase == PhaseUnknown || snap.Config == nil {
		return NewConfigurationError("sale configuration is incomplete")
	}

	cfg := snap.Config
	if amount < cfg.PriceRangeStart || amount > cfg.PriceRangeEnd {
		return NewValidationError("bid %d outside price range [%d, %d]", amount, cfg.PriceRangeStart, cfg.PriceRangeEnd)
	}
	if (amount-cfg.PriceRangeStart)%cfg.TickSize != 0 {
		return NewValidationError("bid %d is not on a tick boundary (tick size %d)", amount, cfg.TickSize)
	}
	if !CanPlaceOrChangeBid(snap.Phase, snap.Ticket, amount, snap.State) {
		return NewValidationError("bidding is not open in the %s phase", snap.Phase)
	}
	if snap.InsufficientFundsFor(amount) {
		return NewValidationError("insufficient funds for bid of %d plus fee", amount)
	}

	return c.submit(ctx, "bid", func(ctx context.Context) (TxHandle, error) {
		return c.mut.SubmitBid(ctx, c.cfg.Sale, c.cfg.Participant, amount)
	})
}

// Withdraw refunds a non-winning ticket. Withdrawal is irreversible and is
// never retried automatically after a confirmed success; a second call on
// a withdrawn ticket is rejected locally.
func (c *Controller) Withdraw(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	snap, err := c.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Phase == PhaseUnknown {
		return NewConfigurationError("sale configuration is incomplete")
	}
	if snap.Ticket == nil {
		return NewValidationError("no ticket to withdraw")
	}
	if snap.Ticket.State == TicketWithdrawn {
		return NewValidationError("ticket already withdrawn")
	}
	if !CanWithdraw(snap.Phase, snap.Ticket, snap.Winner) {
		return NewValidationError("withdrawal is not available in the %s phase", snap.Phase)
	}

	return c.submit(ctx, "withdraw", func(ctx context.Context) (TxHandle, error) {
		return c.mut.WithdrawTicket(ctx, c.cfg.Sale, c.cfg.Participant)
	})
}

// Punch marks a winning ticket as claimed, a prerequisite to redemption.
func (c *Controller) Punch(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	return c.punchLocked(ctx)
}

func (c *Controller) punchLocked(ctx context.Context) error {
	snap, err := c.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Phase == PhaseUnknown {
		return NewConfigurationError("sale configuration is incomplete")
	}
	if !CanPunch(snap.Phase, snap.Ticket, snap.Winner) {
		return NewValidationError("ticket cannot be punched")
	}

	return c.submit(ctx, "punch", func(ctx context.Context) (TxHandle, error) {
		return c.mut.PunchTicket(ctx, c.cfg.Sale, c.cfg.Participant)
	})
}

// Mint redeems a winning ticket for the limited-supply item. A winning
// ticket that is still unpunched is punched first as an implicit step of
// the same action; if the punch fails the mint is not attempted. A retried
// mint sees the already-punched ticket and does not re-attempt the punch.
func (c *Controller) Mint(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	snap, err := c.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Phase == PhaseUnknown {
		return NewConfigurationError("sale configuration is incomplete")
	}
	if !CanMint(snap.Phase, snap.Ticket, snap.Winner, snap.Secondary, snap.DirectBalance) {
		return NewValidationError("minting is not available")
	}

	if snap.Ticket != nil && snap.Ticket.State == TicketUnpunched && snap.Winner {
		if err := c.punchLocked(ctx); err != nil {
			return err
		}
	}

	return c.submit(ctx, "mint", func(ctx context.Context) (TxHandle, error) {
		return c.mut.Redeem(ctx, c.cfg.Sale, c.cfg.Participant)
	})
}

// AntiRugRefund claims the time-gated goodwill refund on a punched ticket.
// Like Withdraw it is irreversible and never retried automatically.
func (c *Controller) AntiRugRefund(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	snap, err := c.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Phase == PhaseUnknown {
		return NewConfigurationError("sale configuration is incomplete")
	}
	if !CanAntiRugRefund(snap.Config, snap.Ticket, c.tm.Now()) {
		return NewValidationError("anti-rug refund is not available")
	}

	return c.submit(ctx, "antirug_refund", func(ctx context.Context) (TxHandle, error) {
		return c.mut.AntiRugRefund(ctx, c.cfg.Sale, c.cfg.Participant)
	})
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return ErrActionInFlight
	}
	c.inFlight = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) currentSnapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	if snap != nil {
		return snap, nil
	}
	return c.Refresh(ctx)
}

// submit sends a validated mutation, awaits its confirmation and refreshes
// the snapshot on success. On a confirmed failure the prior snapshot is
// left untouched. On an unresolved timeout the snapshot is refreshed to
// discover the true outcome, since the transaction may still land.
func (c *Controller) submit(ctx context.Context, action string, send func(context.Context) (TxHandle, error)) error {
	handle, err := send(ctx)
	if err != nil {
		return &NetworkError{Action: action, Err: err}
	}

	if monitor.Enabled {
		monitor.ActionSubmitted(action)
	}
	glog.Infof("Submitted %s sale=%v participant=%v handle=%v", action, c.cfg.Sale, c.cfg.Participant, handle)

	res, err := c.conf.AwaitConfirmation(ctx, handle, c.cfg.TxTimeout)
	if err != nil {
		return &NetworkError{Action: action, Err: err}
	}

	switch res.Status {
	case TxFailed:
		if monitor.Enabled {
			monitor.ActionFailed(action, res.Code)
		}
		return NewRejectedError(res.Code)
	case TxTimedOut:
		if monitor.Enabled {
			monitor.ActionTimedOut(action)
		}
		c.refreshAfterTimeout(ctx, action)
		return &TimeoutError{Action: action, Handle: handle}
	}

	if monitor.Enabled {
		monitor.ActionConfirmed(action)
	}
	glog.Infof("Confirmed %s sale=%v participant=%v handle=%v", action, c.cfg.Sale, c.cfg.Participant, handle)

	if _, err := c.Refresh(ctx); err != nil {
		glog.Errorf("Error refreshing snapshot after %s err=%q", action, err)
	}
	return nil
}

func (c *Controller) refreshAfterTimeout(ctx context.Context, action string) {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), timeoutRefreshRetries)
	refresh := func() error {
		_, err := c.Refresh(ctx)
		return err
	}

	if err := backoff.Retry(refresh, b); err != nil {
		glog.Errorf("Error rediscovering outcome after %s timeout err=%q", action, err)
	}
}
