package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finagent/internal/alerts"
	"finagent/internal/config"
)

// sendTimeout bounds one alert delivery end to end.
const sendTimeout = 30 * time.Second

// Notifier delivers fired price alerts by email. It implements
// alerts.Notifier.
type Notifier struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewNotifier creates an email notifier from SMTP settings.
func NewNotifier(cfg config.SMTPConfig, logger *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: logger}
}

// Notify composes and sends the alert message. The task's own target
// wins over the configured default recipient.
func (n *Notifier) Notify(ctx context.Context, task alerts.Task, price float64) error {
	to := task.NotifyTarget
	if to == "" {
		to = n.cfg.DefaultTo
	}
	if to == "" {
		return fmt.Errorf("no recipient: task has no target and smtp.default_to is unset")
	}

	msg, err := ComposeMessage(ComposeOptions{
		From:    n.cfg.From,
		To:      []string{to},
		Subject: fmt.Sprintf("Price alert: %s", task.Condition()),
		Body:    alertBody(task, price),
	})
	if err != nil {
		return fmt.Errorf("compose alert mail: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := SendMail(ctx, n.cfg, n.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	n.logger.Info("alert mail sent", "to", to, "condition", task.Condition())
	return nil
}

// alertBody renders the alert as markdown; ComposeMessage turns it
// into plain and HTML parts.
func alertBody(task alerts.Task, price float64) string {
	return fmt.Sprintf(`# Price alert triggered

**Condition:** %s

**Current price:** %.2f

The alert is now disarmed. Update it to watch this symbol again.

Alert id: `+"`%s`"+`, created %s.`,
		task.Condition(), price, task.ID, task.CreatedAt.Format("2006-01-02 15:04 MST"))
}
