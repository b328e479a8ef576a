package flaunch

import (
	"context"
	"sync"
	"time"
)

type stubTimeManager struct {
	now time.Time
}

func (tm *stubTimeManager) Now() time.Time {
	return tm.now
}

func (tm *stubTimeManager) ToTime(raw int64) (time.Time, bool) {
	if raw <= 0 {
		return time.Time{}, false
	}
	return time.Unix(raw, 0), true
}

// stubLedger implements LedgerQuery and LedgerMutator against in-memory
// state. Mutations are recorded and applied to the stored ticket so a
// subsequent refresh observes them, mimicking a confirmed transaction.
type stubLedger struct {
	mu sync.Mutex

	config *SaleConfig
	state  *SaleState
	ticket *Ticket
	launch *SecondaryLaunch
	mask   []byte

	balance       uint64
	tokenBalances map[AccountID]uint64

	nextSeq uint64

	queryErr error

	submitErr error
	handles   []TxHandle
	bids      []uint64
	punches   int
	withdraws int
	refunds   int
	redeems   int
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		tokenBalances: make(map[AccountID]uint64),
	}
}

func (l *stubLedger) GetSaleState(ctx context.Context, sale AccountID) (*SaleConfig, *SaleState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return nil, nil, l.queryErr
	}
	return l.config, l.state, nil
}

func (l *stubLedger) GetTicket(ctx context.Context, sale, participant AccountID) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return nil, l.queryErr
	}
	if l.ticket == nil {
		return nil, nil
	}
	t := *l.ticket
	return &t, nil
}

func (l *stubLedger) GetLotteryMask(ctx context.Context, sale AccountID) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return nil, l.queryErr
	}
	return l.mask, nil
}

func (l *stubLedger) GetSecondaryLaunchState(ctx context.Context, sale AccountID) (*SecondaryLaunch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return nil, l.queryErr
	}
	return l.launch, nil
}

func (l *stubLedger) GetBalance(ctx context.Context, participant AccountID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return 0, l.queryErr
	}
	return l.balance, nil
}

func (l *stubLedger) GetTokenBalance(ctx context.Context, mint, participant AccountID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return 0, l.queryErr
	}
	return l.tokenBalances[mint], nil
}

func (l *stubLedger) SubmitBid(ctx context.Context, sale, participant AccountID, amount uint64) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}

	l.bids = append(l.bids, amount)
	if l.ticket == nil {
		l.ticket = &Ticket{Amount: amount, Seq: l.nextSeq, SeqAssigned: true}
		l.nextSeq++
	} else {
		l.ticket.Amount = amount
	}

	return l.record("bid")
}

func (l *stubLedger) PunchTicket(ctx context.Context, sale, participant AccountID) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}

	l.punches++
	if l.ticket != nil {
		l.ticket.State = TicketPunched
	}

	return l.record("punch")
}

func (l *stubLedger) WithdrawTicket(ctx context.Context, sale, participant AccountID) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}

	l.withdraws++
	if l.ticket != nil {
		l.ticket.State = TicketWithdrawn
	}

	return l.record("withdraw")
}

func (l *stubLedger) AntiRugRefund(ctx context.Context, sale, participant AccountID) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}

	l.refunds++
	if l.ticket != nil {
		l.ticket.State = TicketWithdrawn
	}

	return l.record("antirug")
}

func (l *stubLedger) Redeem(ctx context.Context, sale, participant AccountID) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}

	l.redeems++

	return l.record("redeem")
}

func (l *stubLedger) record(action string) (TxHandle, error) {
	h := TxHandle(action)
	l.handles = append(l.handles, h)
	return h, nil
}

// stubConfirmer resolves every handle with a scripted result. Results are
// consumed in order; the last one repeats.
type stubConfirmer struct {
	mu sync.Mutex

	results []ConfirmationResult
	err     error

	calls []TxHandle

	// block, when non-nil, is closed by the test to release waiting calls
	block chan struct{}
}

func newStubConfirmer() *stubConfirmer {
	return &stubConfirmer{
		results: []ConfirmationResult{{Status: TxConfirmed}},
	}
}

func (c *stubConfirmer) AwaitConfirmation(ctx context.Context, handle TxHandle, timeout time.Duration) (ConfirmationResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, handle)
	block := c.block
	res := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	err := c.err
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return ConfirmationResult{}, err
	}
	return res, nil
}
