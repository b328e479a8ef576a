package flaunch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"),
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newTestController(l *stubLedger, cf *stubConfirmer, nowSec int64) *Controller {
	return NewController(
		ControllerConfig{
			Sale:        AccountID{1},
			Participant: AccountID{2},
			TxTimeout:   time.Second,
		},
		l, l, cf,
		&stubTimeManager{now: at(nowSec)},
	)
}

func biddingLedger() *stubLedger {
	l := newStubLedger()
	l.config = defaultSaleConfig()
	l.state = &SaleState{}
	l.balance = 100_000_000_000
	return l
}

// post-lottery ledger with a resolved raffle; seq 0 wins
func resolvedLedger() *stubLedger {
	l := newStubLedger()
	l.config = defaultSaleConfig()
	l.state = &SaleState{PhaseThreeStarted: true, CurrentMedian: 5_000_000_000}
	l.balance = 100_000_000_000
	l.mask = make([]byte, LotteryHeaderSize+1)
	l.mask[LotteryHeaderSize] = 0x80
	return l
}

func TestPlaceBidRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	cf := newStubConfirmer()
	c := newTestController(l, cf, 1500)

	require.Nil(c.PlaceBid(context.Background(), 5_000_000_000))

	snap := c.Snapshot()
	require.NotNil(snap)
	require.NotNil(snap.Ticket)
	assert.Equal(uint64(5_000_000_000), snap.Ticket.Amount)
	assert.Equal([]uint64{5_000_000_000}, l.bids)
	assert.Len(cf.calls, 1)

	// changing the bid overwrites the same ticket
	require.Nil(c.PlaceBid(context.Background(), 7_000_000_000))
	assert.Equal(uint64(7_000_000_000), c.Snapshot().Ticket.Amount)
}

func TestPlaceBidRejectedLocally(t *testing.T) {
	assert := assert.New(t)

	l := biddingLedger()
	c := newTestController(l, newStubConfirmer(), 1500)

	var valErr *ValidationError

	// tick size violation (4.5 in whole units)
	err := c.PlaceBid(context.Background(), 4_500_000_000)
	assert.ErrorAs(err, &valErr)

	// range violation
	err = c.PlaceBid(context.Background(), 11_000_000_000)
	assert.ErrorAs(err, &valErr)
	err = c.PlaceBid(context.Background(), 500_000_000)
	assert.ErrorAs(err, &valErr)

	// nothing reached the ledger
	assert.Empty(l.bids)
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	assert := assert.New(t)

	l := biddingLedger()
	l.balance = 1_000_000_000
	c := newTestController(l, newStubConfirmer(), 1500)

	var valErr *ValidationError
	err := c.PlaceBid(context.Background(), 5_000_000_000)
	assert.ErrorAs(err, &valErr)
	assert.Empty(l.bids)
}

func TestPlaceBidPhaseClosed(t *testing.T) {
	assert := assert.New(t)

	l := biddingLedger()
	c := newTestController(l, newStubConfirmer(), 3100)

	var valErr *ValidationError
	err := c.PlaceBid(context.Background(), 5_000_000_000)
	assert.ErrorAs(err, &valErr)
	assert.Empty(l.bids)
}

func TestGracePeriodNewcomerOnlyAtMedian(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	l.state.CurrentMedian = 5_000_000_000
	c := newTestController(l, newStubConfirmer(), 2500)

	var valErr *ValidationError
	err := c.PlaceBid(context.Background(), 6_000_000_000)
	assert.ErrorAs(err, &valErr)
	assert.Empty(l.bids)

	require.Nil(c.PlaceBid(context.Background(), 5_000_000_000))
	assert.Equal([]uint64{5_000_000_000}, l.bids)
}

func TestWithdrawTerminal(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := resolvedLedger()
	// seq 1 loses
	l.ticket = &Ticket{Amount: 4_000_000_000, Seq: 1, SeqAssigned: true}
	c := newTestController(l, newStubConfirmer(), 4000)

	require.Nil(c.Withdraw(context.Background()))
	assert.Equal(1, l.withdraws)
	assert.Equal(TicketWithdrawn, c.Snapshot().Ticket.State)

	// second withdraw is rejected locally, never re-submitted
	var valErr *ValidationError
	err := c.Withdraw(context.Background())
	require.ErrorAs(err, &valErr)
	assert.Contains(valErr.Reason, "withdrawn")
	assert.Equal(1, l.withdraws)
}

func TestWithdrawWinnerBlocked(t *testing.T) {
	assert := assert.New(t)

	l := resolvedLedger()
	l.ticket = &Ticket{Amount: 6_000_000_000, Seq: 0, SeqAssigned: true}
	c := newTestController(l, newStubConfirmer(), 4000)

	var valErr *ValidationError
	err := c.Withdraw(context.Background())
	assert.ErrorAs(err, &valErr)
	assert.Zero(l.withdraws)
}

func TestInFlightGuard(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	cf := newStubConfirmer()
	cf.block = make(chan struct{})
	c := newTestController(l, cf, 1500)

	done := make(chan error, 1)
	go func() {
		done <- c.PlaceBid(context.Background(), 5_000_000_000)
	}()

	// wait for the first action to reach the confirmation wait
	require.Eventually(func() bool {
		cf.mu.Lock()
		defer cf.mu.Unlock()
		return len(cf.calls) == 1
	}, time.Second, time.Millisecond)

	err := c.Withdraw(context.Background())
	assert.ErrorIs(err, ErrActionInFlight)

	close(cf.block)
	require.Nil(<-done)

	// guard released after completion
	var valErr *ValidationError
	assert.ErrorAs(c.Withdraw(context.Background()), &valErr)
}

func TestTimeoutIsUnresolved(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	cf := newStubConfirmer()
	cf.results = []ConfirmationResult{{Status: TxTimedOut}}
	c := newTestController(l, cf, 1500)

	err := c.PlaceBid(context.Background(), 5_000_000_000)
	require.NotNil(err)

	var toErr *TimeoutError
	require.ErrorAs(err, &toErr)
	assert.True(toErr.Unresolved())
	assert.Equal("bid", toErr.Action)

	// the snapshot was refreshed to discover the true outcome
	snap := c.Snapshot()
	require.NotNil(snap)
	require.NotNil(snap.Ticket)
	assert.Equal(uint64(5_000_000_000), snap.Ticket.Amount)
}

func TestRejectedByLedgerLeavesSnapshotUntouched(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	cf := newStubConfirmer()
	cf.results = []ConfirmationResult{{Status: TxFailed, Code: "311"}}
	c := newTestController(l, cf, 1500)

	err := c.PlaceBid(context.Background(), 5_000_000_000)
	require.NotNil(err)

	var rejErr *RejectedError
	require.ErrorAs(err, &rejErr)
	assert.Contains(rejErr.Error(), "sold out")

	// prior snapshot untouched: no speculative local mutation
	require.NotNil(c.Snapshot())
	assert.Nil(c.Snapshot().Ticket)
}

func redemptionLedger() *stubLedger {
	l := resolvedLedger()
	l.launch = &SecondaryLaunch{GoLiveDate: 3500, IsActive: true}
	l.ticket = &Ticket{Amount: 6_000_000_000, Seq: 0, SeqAssigned: true}
	return l
}

func TestMintPunchesFirst(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := redemptionLedger()
	c := newTestController(l, newStubConfirmer(), 4000)

	require.Nil(c.Mint(context.Background()))

	assert.Equal(1, l.punches)
	assert.Equal(1, l.redeems)
	assert.Equal([]TxHandle{"punch", "redeem"}, l.handles)
}

func TestMintNotAttemptedWhenPunchFails(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := redemptionLedger()
	cf := newStubConfirmer()
	cf.results = []ConfirmationResult{{Status: TxFailed, Code: "0x135"}}
	c := newTestController(l, cf, 4000)

	err := c.Mint(context.Background())
	require.NotNil(err)

	var rejErr *RejectedError
	require.ErrorAs(err, &rejErr)
	assert.Zero(l.redeems)
}

func TestMintRetryDoesNotRepunch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := redemptionLedger()
	l.ticket.State = TicketPunched
	l.state.TokenMint = AccountID{9}
	l.tokenBalances[AccountID{9}] = 1
	c := newTestController(l, newStubConfirmer(), 4000)

	require.Nil(c.Mint(context.Background()))

	assert.Zero(l.punches)
	assert.Equal(1, l.redeems)
}

func TestMintFullyRedeemed(t *testing.T) {
	assert := assert.New(t)

	l := redemptionLedger()
	l.ticket.State = TicketPunched
	c := newTestController(l, newStubConfirmer(), 4000)

	var valErr *ValidationError
	err := c.Mint(context.Background())
	assert.ErrorAs(err, &valErr)
	assert.Zero(l.redeems)
}

func TestAntiRugRefund(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := redemptionLedger()
	l.config.AntiRug = &AntiRugSetting{ReserveBP: 5000, TokenRequirement: 1000, SelfDestructDate: 3900}
	l.ticket.State = TicketPunched
	c := newTestController(l, newStubConfirmer(), 4000)

	require.Nil(c.AntiRugRefund(context.Background()))
	assert.Equal(1, l.refunds)

	// before the deadline it is rejected locally
	l2 := redemptionLedger()
	l2.config.AntiRug = &AntiRugSetting{ReserveBP: 5000, TokenRequirement: 1000, SelfDestructDate: 4100}
	l2.ticket.State = TicketPunched
	c2 := newTestController(l2, newStubConfirmer(), 4000)

	var valErr *ValidationError
	assert.ErrorAs(c2.AntiRugRefund(context.Background()), &valErr)
	assert.Zero(l2.refunds)
}

func TestUnknownPhaseDisablesActions(t *testing.T) {
	assert := assert.New(t)

	l := newStubLedger()
	c := newTestController(l, newStubConfirmer(), 1500)

	var cfgErr *ConfigurationError
	assert.ErrorAs(c.PlaceBid(context.Background(), 5_000_000_000), &cfgErr)
	assert.ErrorAs(c.Withdraw(context.Background()), &cfgErr)
	assert.ErrorAs(c.Mint(context.Background()), &cfgErr)
	assert.Empty(l.handles)
}

func TestInvalidConfigSurfacesAsConfigurationError(t *testing.T) {
	assert := assert.New(t)

	l := biddingLedger()
	l.config.PriceRangeStart = l.config.PriceRangeEnd + 1
	c := newTestController(l, newStubConfirmer(), 1500)

	_, err := c.Refresh(context.Background())
	var cfgErr *ConfigurationError
	assert.ErrorAs(err, &cfgErr)
}

func TestSnapshotSubscription(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := biddingLedger()
	c := newTestController(l, newStubConfirmer(), 1500)

	sink := make(chan *Snapshot, 1)
	sub := c.Subscribe(sink)
	defer sub.Unsubscribe()

	snap, err := c.Refresh(context.Background())
	require.Nil(err)

	select {
	case got := <-sink:
		assert.Equal(snap, got)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	c.Stop()
}
