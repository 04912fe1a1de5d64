package whatsapp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	client "github.com/mamadbah2/stockcount/pkg/clients/whatsapp"
)

// Alerts forwards workflow events to the supervisor's WhatsApp number. With
// no supervisor configured every notification is a no-op.
type Alerts struct {
	client     client.Client
	supervisor string
	logger     *zap.Logger
}

// NewAlerts builds an Alerts notifier.
func NewAlerts(c client.Client, supervisor string, logger *zap.Logger) *Alerts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerts{client: c, supervisor: supervisor, logger: logger}
}

// NotifyDiscrepancy reports a significant variance found during a count.
func (a *Alerts) NotifyDiscrepancy(ctx context.Context, record models.AuditRecord, eval models.EntryEvaluation) error {
	direction := "surplus"
	if eval.Variance < 0 {
		direction = "shortage"
	}
	body := fmt.Sprintf("Discrepancy on %s (%s): counted %d against %d in system, %s of %d (%d%%). Last count by %s at %s.",
		record.SKU, record.ItemName, eval.GlobalTotal, eval.SystemStock, direction, abs(eval.Variance), eval.PercentDiff,
		record.TeamMember, record.Location)
	return a.send(ctx, body)
}

// NotifyDamage reports a damaged location.
func (a *Alerts) NotifyDamage(ctx context.Context, report models.DamageReport) error {
	body := fmt.Sprintf("Damage reported at %s by %s: %s", report.Location, report.ReportedBy, report.Description)
	return a.send(ctx, body)
}

// Send pushes a free-form message to the supervisor.
func (a *Alerts) Send(ctx context.Context, body string) error {
	return a.send(ctx, body)
}

func (a *Alerts) send(ctx context.Context, body string) error {
	if a.supervisor == "" || a.client == nil {
		return nil
	}
	if _, err := a.client.SendTextMessage(ctx, client.SendTextMessageRequest{To: a.supervisor, Body: body}); err != nil {
		a.logger.Warn("supervisor alert failed", zap.Error(err))
		return fmt.Errorf("send supervisor alert: %w", err)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
