package service

import (
	"context"
	"time"

	"bookswap/internal/models"
	"bookswap/internal/observability"

	"github.com/google/uuid"
)

// PaymentProcessor settles the payment attached to a buy request.
type PaymentProcessor interface {
	Settle(ctx context.Context, t models.RequestType, amount float64) (*PaymentReceipt, error)
}

// PaymentReceipt describes a settled (simulated) payment.
type PaymentReceipt struct {
	IntentID string
	Status   models.PaymentStatus
	Amount   float64
}

// PaymentSimulator stands in for a payment gateway: every buy settles as paid
// after a fixed delay. Swap requests settle immediately as pending.
type PaymentSimulator struct {
	delay time.Duration
}

// NewPaymentSimulator returns a simulator that waits delay before settling.
func NewPaymentSimulator(delay time.Duration) *PaymentSimulator {
	return &PaymentSimulator{delay: delay}
}

func (p *PaymentSimulator) Settle(ctx context.Context, t models.RequestType, amount float64) (*PaymentReceipt, error) {
	if t != models.RequestBuy {
		return &PaymentReceipt{Status: models.PaymentPending}, nil
	}

	ctx, span := observability.StartSpan(ctx, "payment", "settle")
	var err error
	defer func() { span.End(err) }()

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return nil, err
		case <-timer.C:
		}
	}

	return &PaymentReceipt{
		IntentID: "pi_sim_" + uuid.NewString(),
		Status:   models.PaymentStatusFor(t),
		Amount:   amount,
	}, nil
}
