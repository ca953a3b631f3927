package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/pkg/clients/whatsapp"
)

const sendTimeout = 20 * time.Second

// Sender delivers a text message.
type Sender interface {
	SendTextMessage(ctx context.Context, req whatsapp.SendTextMessageRequest) (*whatsapp.SendTextMessageResponse, error)
}

// Notifier forwards error-severity anomalies to a WhatsApp recipient. Each
// anomaly is sent once while it stays flagged; once it clears it may alert again.
type Notifier struct {
	sender    Sender
	recipient string
	logger    *zap.Logger

	mu       sync.Mutex
	notified map[string]struct{}
	inflight map[string]struct{}

	wg sync.WaitGroup
}

// NewNotifier wires a notifier for recipient.
func NewNotifier(sender Sender, recipient string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		sender:    sender,
		recipient: recipient,
		logger:    logger,
		notified:  make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// OnApplied is registered as a dashboard hook. Delivery runs in the
// background and failures are logged.
func (n *Notifier) OnApplied(ctx context.Context, result models.DashboardResult) {
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		if err := n.Notify(ctx, result); err != nil {
			n.logger.Warn("anomaly alert not delivered", zap.Error(err))
		}
	}()
}

// Wait blocks until every delivery started by OnApplied has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Notify sends the error anomalies of result that were not sent yet.
// Anomalies that failed to send are retried on the next call. A key is
// forgotten only once the batch is no longer flagged at all, not when it
// merely drops out of the displayed list.
func (n *Notifier) Notify(ctx context.Context, result models.DashboardResult) error {
	fresh := n.claim(result)
	if len(fresh) == 0 {
		return nil
	}

	_, err := n.sender.SendTextMessage(ctx, whatsapp.SendTextMessageRequest{
		To:   n.recipient,
		Body: FormatMessage(fresh, result.ComputedAt),
	})

	n.mu.Lock()
	for _, a := range fresh {
		delete(n.inflight, a.Key())
		if err == nil {
			n.notified[a.Key()] = struct{}{}
		}
	}
	n.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send %d anomaly alerts: %w", len(fresh), err)
	}
	n.logger.Info("anomaly alerts sent", zap.Int("count", len(fresh)))
	return nil
}

// claim prunes cleared keys and reserves the anomalies this call must send.
func (n *Notifier) claim(result models.DashboardResult) []models.Anomaly {
	flagged := make(map[string]struct{}, len(result.FlaggedKeys)+len(result.Anomalies))
	for _, key := range result.FlaggedKeys {
		flagged[key] = struct{}{}
	}
	for _, a := range result.Anomalies {
		flagged[a.Key()] = struct{}{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for key := range n.notified {
		if _, ok := flagged[key]; !ok {
			delete(n.notified, key)
		}
	}

	fresh := make([]models.Anomaly, 0)
	for _, a := range result.Anomalies {
		if a.Severity != models.SeverityError {
			continue
		}
		key := a.Key()
		_, sent := n.notified[key]
		_, sending := n.inflight[key]
		if sent || sending {
			continue
		}
		n.inflight[key] = struct{}{}
		fresh = append(fresh, a)
	}
	return fresh
}

// FormatMessage renders anomalies as a WhatsApp text.
func FormatMessage(anomalies []models.Anomaly, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ASI-GEST - Anomalie critiche (%s)\n", at.Format("02/01/2006 15:04"))
	for _, a := range anomalies {
		fmt.Fprintf(&b, "- %s\n", a.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
