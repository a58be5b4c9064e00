package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/metrics"
	"github.com/hamed0406/hostwatch/internal/notify"
)

// DefaultRetryBackoff is the pause between fan-out rounds while any
// recipient is still failing.
const DefaultRetryBackoff = 5 * time.Second

var errNoHandle = errors.New("delivery returned no handle")

// Outcome is the delivery result for one recipient in one round.
type Outcome struct {
	RecipientID int64
	Handle      *domain.MessageHandle
	Err         error
}

func (o Outcome) Delivered() bool { return o.Err == nil && o.Handle != nil }

// AlertSender is what a Monitor needs from the alert manager.
type AlertSender interface {
	SendToAll(ctx context.Context, body string) ([]Outcome, error)
	Resolve(ctx context.Context, msg domain.AlertMessage, body string) bool
}

// Alerter fans a notification out to every recipient and keeps retrying
// until all of them have it.
type Alerter struct {
	logger     *zap.Logger
	channel    notify.Channel
	recipients []int64
	backoff    time.Duration
	metrics    *metrics.Registry
}

func NewAlerter(logger *zap.Logger, ch notify.Channel, recipients []int64, backoff time.Duration, m *metrics.Registry) *Alerter {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	rs := make([]int64, len(recipients))
	copy(rs, recipients)
	return &Alerter{
		logger:     logger,
		channel:    ch,
		recipients: rs,
		backoff:    backoff,
		metrics:    m,
	}
}

// SendToAll delivers body to every recipient. If any delivery fails it
// waits the backoff and sends to all recipients again, so a recipient that
// already succeeded may get duplicates. It has no retry cap: it returns
// only once a round delivers to everyone, or when ctx is cancelled, in
// which case the last round's outcomes are returned with ctx.Err().
func (a *Alerter) SendToAll(ctx context.Context, body string) ([]Outcome, error) {
	for round := 1; ; round++ {
		outcomes := a.fanOut(ctx, round, body)
		failed := 0
		for _, o := range outcomes {
			if !o.Delivered() {
				failed++
			}
		}
		if failed == 0 {
			if round > 1 {
				a.logger.Info("alert_delivered_after_retry", zap.Int("round", round), zap.Int("recipients", len(outcomes)))
			}
			return outcomes, nil
		}

		a.logger.Warn("alert_delivery_incomplete",
			zap.Int("round", round),
			zap.Int("failed", failed),
			zap.Int("recipients", len(outcomes)),
			zap.Duration("retry_in", a.backoff),
		)

		t := time.NewTimer(a.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return outcomes, ctx.Err()
		case <-t.C:
		}
	}
}

func (a *Alerter) fanOut(ctx context.Context, round int, body string) []Outcome {
	a.metrics.Inc(metrics.SendRoundsTotal)
	outcomes := make([]Outcome, 0, len(a.recipients))
	for _, id := range a.recipients {
		o := Outcome{RecipientID: id}
		h, err := a.channel.Send(ctx, id, body)
		if err == nil {
			o.Handle = &h
		} else {
			o.Err = err
			a.metrics.Inc(metrics.DeliveryFailuresTotal, "recipient", strconv.FormatInt(id, 10))
			a.logger.Error("alert_send_failed",
				zap.Int64("recipient", id),
				zap.Int("round", round),
				zap.Error(err),
			)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// Resolve makes one attempt to edit a delivered alert into body.
func (a *Alerter) Resolve(ctx context.Context, msg domain.AlertMessage, body string) bool {
	if !msg.Delivered() {
		a.logger.Warn("alert_resolve_skipped",
			zap.Int64("recipient", msg.RecipientID),
			zap.String("target", msg.Target),
			zap.Error(errNoHandle),
		)
		return false
	}
	if err := a.channel.Edit(ctx, *msg.Handle, body); err != nil {
		a.logger.Error("alert_resolve_failed",
			zap.Int64("recipient", msg.RecipientID),
			zap.String("target", msg.Target),
			zap.Error(err),
		)
		return false
	}
	a.logger.Info("alert_resolved", zap.Int64("recipient", msg.RecipientID), zap.String("target", msg.Target))
	return true
}

// AlertMessages turns one escalation's outcomes into the messages that
// make up the target's open alert set.
func AlertMessages(target string, outcomes []Outcome) []domain.AlertMessage {
	out := make([]domain.AlertMessage, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, domain.AlertMessage{RecipientID: o.RecipientID, Handle: o.Handle, Target: target})
	}
	return out
}
