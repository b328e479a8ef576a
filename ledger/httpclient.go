// Package ledger implements the fair-launch collaborator interfaces
// against an HTTP JSON ledger gateway. The gateway fronts the actual chain
// node and the wallet/signing subsystem; this client never sees keys.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/phantasia-sports/fairlaunch/flaunch"
)

const (
	requestTimeout      = 10 * time.Second
	confirmPollInterval = 2 * time.Second

	// read-path retries before giving up; mutations are never retried here
	readRetries = 3
)

var errNotFound = errors.New("not found")

// Client talks to a fair-launch ledger gateway. It implements
// flaunch.LedgerQuery, flaunch.LedgerMutator and flaunch.TxConfirmer.
type Client struct {
	endpoint string
	http     *http.Client

	// sale configs are immutable after creation, cache them forever
	configs *cache.Cache

	pollInterval time.Duration
}

// NewClient creates a gateway client for the given base endpoint,
// e.g. "http://localhost:8935".
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		http:         &http.Client{Timeout: requestTimeout},
		configs:      cache.New(cache.NoExpiration, 0),
		pollInterval: confirmPollInterval,
	}
}

type saleConfigJSON struct {
	PriceRangeStart uint64 `json:"priceRangeStart"`
	PriceRangeEnd   uint64 `json:"priceRangeEnd"`
	TickSize        uint64 `json:"tickSize"`
	Fee             uint64 `json:"fee"`
	NumberOfTokens  uint64 `json:"numberOfTokens"`
	PhaseOneStart   int64  `json:"phaseOneStart"`
	PhaseOneEnd     int64  `json:"phaseOneEnd"`
	PhaseTwoEnd     int64  `json:"phaseTwoEnd"`
	LotteryDuration int64  `json:"lotteryDuration"`

	AntiRugSetting *antiRugJSON `json:"antiRugSetting,omitempty"`
}

type antiRugJSON struct {
	ReserveBP        uint64 `json:"reserveBp"`
	TokenRequirement uint64 `json:"tokenRequirement"`
	SelfDestructDate int64  `json:"selfDestructDate"`
}

type saleStateJSON struct {
	CurrentMedian     uint64 `json:"currentMedian"`
	NumberTicketsSold uint64 `json:"numberTicketsSold"`
	TreasuryBalance   uint64 `json:"treasuryBalance"`
	PhaseThreeStarted bool   `json:"phaseThreeStarted"`
	TokenMint         string `json:"tokenMint,omitempty"`
}

type ticketJSON struct {
	Amount uint64  `json:"amount"`
	Seq    *uint64 `json:"seq,omitempty"`
	State  string  `json:"state"`
}

type lotteryJSON struct {
	Data []byte `json:"data"`
}

type secondaryJSON struct {
	GoLiveDate int64 `json:"goLiveDate"`
	IsActive   bool  `json:"isActive"`
	IsSoldOut  bool  `json:"isSoldOut"`
}

type balanceJSON struct {
	Balance uint64 `json:"balance"`
}

type submitJSON struct {
	Participant string `json:"participant"`
	Amount      uint64 `json:"amount,omitempty"`
	RequestID   string `json:"requestId"`
}

type handleJSON struct {
	Handle string `json:"handle"`
}

type txStatusJSON struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
}

func (c *Client) GetSaleState(ctx context.Context, sale flaunch.AccountID) (*flaunch.SaleConfig, *flaunch.SaleState, error) {
	cfg, err := c.getSaleConfig(ctx, sale)
	if err != nil {
		return nil, nil, err
	}

	var stateWire saleStateJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/sale/%s/state", sale), &stateWire); err != nil {
		return nil, nil, errors.Wrap(err, "sale state")
	}

	state := &flaunch.SaleState{
		CurrentMedian:     stateWire.CurrentMedian,
		NumberTicketsSold: stateWire.NumberTicketsSold,
		TreasuryBalance:   stateWire.TreasuryBalance,
		PhaseThreeStarted: stateWire.PhaseThreeStarted,
	}
	if stateWire.TokenMint != "" {
		mint, err := flaunch.ParseAccountID(stateWire.TokenMint)
		if err != nil {
			return nil, nil, errors.Wrap(err, "token mint")
		}
		state.TokenMint = mint
	}

	return cfg, state, nil
}

func (c *Client) getSaleConfig(ctx context.Context, sale flaunch.AccountID) (*flaunch.SaleConfig, error) {
	if cached, ok := c.configs.Get(sale.String()); ok {
		return cached.(*flaunch.SaleConfig), nil
	}

	var wire saleConfigJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/sale/%s/config", sale), &wire); err != nil {
		return nil, errors.Wrap(err, "sale config")
	}

	cfg := &flaunch.SaleConfig{
		PriceRangeStart: wire.PriceRangeStart,
		PriceRangeEnd:   wire.PriceRangeEnd,
		TickSize:        wire.TickSize,
		Fee:             wire.Fee,
		NumberOfTokens:  wire.NumberOfTokens,
		PhaseOneStart:   wire.PhaseOneStart,
		PhaseOneEnd:     wire.PhaseOneEnd,
		PhaseTwoEnd:     wire.PhaseTwoEnd,
		LotteryDuration: wire.LotteryDuration,
	}
	if wire.AntiRugSetting != nil {
		cfg.AntiRug = &flaunch.AntiRugSetting{
			ReserveBP:        wire.AntiRugSetting.ReserveBP,
			TokenRequirement: wire.AntiRugSetting.TokenRequirement,
			SelfDestructDate: wire.AntiRugSetting.SelfDestructDate,
		}
	}

	c.configs.SetDefault(sale.String(), cfg)

	return cfg, nil
}

func (c *Client) GetTicket(ctx context.Context, sale, participant flaunch.AccountID) (*flaunch.Ticket, error) {
	var wire ticketJSON
	err := c.getJSON(ctx, fmt.Sprintf("/sale/%s/ticket/%s", sale, participant), &wire)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "ticket")
	}

	ticket := &flaunch.Ticket{Amount: wire.Amount}
	if wire.Seq != nil {
		ticket.Seq = *wire.Seq
		ticket.SeqAssigned = true
	}

	switch wire.State {
	case "unpunched":
		ticket.State = flaunch.TicketUnpunched
	case "punched":
		ticket.State = flaunch.TicketPunched
	case "withdrawn":
		ticket.State = flaunch.TicketWithdrawn
	default:
		return nil, errors.Errorf("unknown ticket state %q", wire.State)
	}

	return ticket, nil
}

func (c *Client) GetLotteryMask(ctx context.Context, sale flaunch.AccountID) ([]byte, error) {
	var wire lotteryJSON
	err := c.getJSON(ctx, fmt.Sprintf("/sale/%s/lottery", sale), &wire)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lottery mask")
	}
	return wire.Data, nil
}

func (c *Client) GetSecondaryLaunchState(ctx context.Context, sale flaunch.AccountID) (*flaunch.SecondaryLaunch, error) {
	var wire secondaryJSON
	err := c.getJSON(ctx, fmt.Sprintf("/sale/%s/secondary", sale), &wire)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "secondary launch")
	}
	return &flaunch.SecondaryLaunch{
		GoLiveDate: wire.GoLiveDate,
		IsActive:   wire.IsActive,
		IsSoldOut:  wire.IsSoldOut,
	}, nil
}

func (c *Client) GetBalance(ctx context.Context, participant flaunch.AccountID) (uint64, error) {
	var wire balanceJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/balance/%s", participant), &wire); err != nil {
		return 0, errors.Wrap(err, "balance")
	}
	return wire.Balance, nil
}

func (c *Client) GetTokenBalance(ctx context.Context, mint, participant flaunch.AccountID) (uint64, error) {
	var wire balanceJSON
	err := c.getJSON(ctx, fmt.Sprintf("/balance/%s/token/%s", participant, mint), &wire)
	if errors.Is(err, errNotFound) {
		// token account not created yet
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "token balance")
	}
	return wire.Balance, nil
}

func (c *Client) SubmitBid(ctx context.Context, sale, participant flaunch.AccountID, amount uint64) (flaunch.TxHandle, error) {
	return c.postAction(ctx, fmt.Sprintf("/sale/%s/bid", sale), participant, amount)
}

func (c *Client) PunchTicket(ctx context.Context, sale, participant flaunch.AccountID) (flaunch.TxHandle, error) {
	return c.postAction(ctx, fmt.Sprintf("/sale/%s/punch", sale), participant, 0)
}

// WithdrawTicket funds the refund path. On the wire a withdrawal is a bid
// of zero, matching the on-chain program's instruction encoding.
func (c *Client) WithdrawTicket(ctx context.Context, sale, participant flaunch.AccountID) (flaunch.TxHandle, error) {
	return c.postAction(ctx, fmt.Sprintf("/sale/%s/bid", sale), participant, 0)
}

func (c *Client) AntiRugRefund(ctx context.Context, sale, participant flaunch.AccountID) (flaunch.TxHandle, error) {
	return c.postAction(ctx, fmt.Sprintf("/sale/%s/refund", sale), participant, 0)
}

func (c *Client) Redeem(ctx context.Context, sale, participant flaunch.AccountID) (flaunch.TxHandle, error) {
	return c.postAction(ctx, fmt.Sprintf("/sale/%s/redeem", sale), participant, 0)
}

// AwaitConfirmation polls the gateway for the transaction's resolution
// until the timeout elapses. Hitting the timeout yields TxTimedOut, not an
// error: the transaction may still land.
func (c *Client) AwaitConfirmation(ctx context.Context, handle flaunch.TxHandle, timeout time.Duration) (flaunch.ConfirmationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var wire txStatusJSON
		err := c.getJSON(ctx, fmt.Sprintf("/tx/%s", handle), &wire)
		switch {
		case err == nil:
			switch wire.Status {
			case "confirmed":
				return flaunch.ConfirmationResult{Status: flaunch.TxConfirmed}, nil
			case "failed":
				return flaunch.ConfirmationResult{Status: flaunch.TxFailed, Code: wire.Code}, nil
			}
			// still pending, keep polling
		case errors.Is(err, errNotFound):
			// the gateway has not indexed the transaction yet
		case ctx.Err() == nil:
			return flaunch.ConfirmationResult{}, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return flaunch.ConfirmationResult{Status: flaunch.TxTimedOut}, nil
			}
			return flaunch.ConfirmationResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) postAction(ctx context.Context, path string, participant flaunch.AccountID, amount uint64) (flaunch.TxHandle, error) {
	body := submitJSON{
		Participant: participant.String(),
		Amount:      amount,
		RequestID:   uuid.New().String(),
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", errors.Errorf("unexpected status %v for %v", resp.Status, path)
	}

	var wire handleJSON
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", errors.Wrap(err, "decoding handle")
	}

	glog.V(2).Infof("Submitted %v requestID=%v handle=%v", path, body.RequestID, wire.Handle)

	return flaunch.TxHandle(wire.Handle), nil
}

// getJSON fetches path with retries. 404 is permanent and surfaced as
// errNotFound for callers that treat missing accounts as nil.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return backoff.Permanent(errNotFound)
		default:
			return errors.Errorf("unexpected status %v for %v", resp.Status, path)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errors.Wrapf(err, "decoding %v", path))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), readRetries), ctx)
	return backoff.Retry(op, b)
}
