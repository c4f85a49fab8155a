package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/transfer"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrIgnoredEvent is returned for webhook events that carry no payout result.
var ErrIgnoredEvent = errors.New("webhook event ignored")

type transferAPI interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

// Stripe moves payouts to hosts' connected accounts.
type Stripe struct {
	transfers     transferAPI
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return &Stripe{
		transfers:     &transfer.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
	}
}

// Submit creates a transfer for p. The payout id is the idempotency key,
// so resubmitting after a crash never pays twice. A request Stripe
// rejects outright yields a FAILED result; other errors leave the payout
// PENDING for the next dispatch.
func (s *Stripe) Submit(p *domain.PayoutRequest, account *domain.PayoutAccount) (domain.GatewayResult, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(int64(p.Amount)),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		Destination:   stripe.String(account.Destination),
		TransferGroup: stripe.String("payout_" + p.ID),
	}
	params.AddMetadata("payout_id", p.ID)
	params.AddMetadata("host_id", p.HostID)
	params.SetIdempotencyKey(p.ID)

	tr, err := s.transfers.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && rejected(serr.HTTPStatusCode) {
			return domain.GatewayResult{Status: domain.PayoutStatusFailed, Reason: serr.Msg}, nil
		}
		return domain.GatewayResult{}, fmt.Errorf("stripe transfer for payout %s: %w", p.ID, err)
	}
	return domain.GatewayResult{Status: domain.PayoutStatusProcessing, Reference: tr.ID}, nil
}

func rejected(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusConflict
}

// ParseWebhook verifies the signature and maps transfer events to the
// payout they settle.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (payoutID string, result domain.GatewayResult, err error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return "", domain.GatewayResult{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return transferResult(event)
}

func transferResult(event stripe.Event) (string, domain.GatewayResult, error) {
	var status domain.PayoutStatus
	switch event.Type {
	case stripe.EventTypeTransferCreated:
		status = domain.PayoutStatusCompleted
	case stripe.EventTypeTransferReversed:
		status = domain.PayoutStatusFailed
	default:
		return "", domain.GatewayResult{}, ErrIgnoredEvent
	}
	if event.Data == nil {
		return "", domain.GatewayResult{}, fmt.Errorf("%w: event %s has no data", domain.ErrValidation, event.ID)
	}

	var tr stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
		return "", domain.GatewayResult{}, fmt.Errorf("%w: decode transfer: %v", domain.ErrValidation, err)
	}
	payoutID := tr.Metadata["payout_id"]
	if payoutID == "" {
		return "", domain.GatewayResult{}, ErrIgnoredEvent
	}

	res := domain.GatewayResult{Status: status, Reference: tr.ID}
	if status == domain.PayoutStatusFailed {
		res.Reason = "transfer reversed"
	}
	return payoutID, res, nil
}
