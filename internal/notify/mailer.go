// Package notify sends the bulk run report by email. Notification
// failures are logged and swallowed; they never touch task state.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/config"
	"github.com/wonny/argos/pkg/logger"
)

// Mailer emails the recommendation summary after a bulk run drains.
// Disabled (a silent no-op) unless an API key and recipient are
// configured.
// ⭐ SSOT: 이메일 발송은 여기서만
type Mailer struct {
	cfg     config.NotifyConfig
	results contracts.ResultRepository
	logger  *logger.Logger
	send    func(email *mail.SGMailV3) error
}

// NewMailer creates a mailer over the configured sendgrid account
func NewMailer(cfg config.NotifyConfig, results contracts.ResultRepository, log *logger.Logger) *Mailer {
	m := &Mailer{cfg: cfg, results: results, logger: log}
	m.send = func(email *mail.SGMailV3) error {
		client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
		resp, err := client.Send(email)
		if err != nil {
			return fmt.Errorf("failed to send mail: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
		}
		return nil
	}
	return m
}

// BulkFinished mails the final counters and summary of a drained bulk
// run. Implements the bulk runner's Reporter hook.
func (m *Mailer) BulkFinished(task *contracts.Task) {
	if !m.cfg.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := m.results.GetSummary(ctx, task.ID)
	if err != nil {
		m.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to load summary for report mail")
	}

	subject := fmt.Sprintf("[Argos] Bulk analysis %s — %d/%d completed",
		strings.ToLower(string(task.Status)), task.Counters.Completed, task.Counters.Total)

	body := BuildReport(task, summary)
	email := mail.NewSingleEmail(
		mail.NewEmail("Argos", m.cfg.EmailFrom),
		subject,
		mail.NewEmail("", m.cfg.EmailTo),
		body, body,
	)

	if err := m.send(email); err != nil {
		m.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to send bulk report mail")
		return
	}

	m.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"to":      m.cfg.EmailTo,
	}).Info("Bulk report mail sent")
}

// BuildReport renders the plain-text report body. A missing summary
// still produces the counter section.
func BuildReport(task *contracts.Task, summary *contracts.RecommendationSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Bulk analysis %s\n", task.ID)
	fmt.Fprintf(&b, "Date: %s\n", task.AnalysisDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Status: %s\n\n", task.Status)
	fmt.Fprintf(&b, "Symbols: %d total, %d completed, %d failed, %d skipped\n",
		task.Counters.Total, task.Counters.Completed, task.Counters.Failed, task.Counters.Skipped)

	if summary == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "Verdicts: %d BUY / %d SELL / %d HOLD\n", summary.BuyCount, summary.SellCount, summary.HoldCount)

	if len(summary.TopPicks) > 0 {
		b.WriteString("\nTop picks:\n")
		for _, pick := range summary.TopPicks {
			fmt.Fprintf(&b, "  %d. %s (score %d, %s confidence, %s risk, hold %dd)\n",
				pick.Rank, pick.Symbol, pick.Score, pick.Confidence, pick.Risk, pick.HoldDays)
		}
	}

	if len(summary.AvoidList) > 0 {
		b.WriteString("\nAvoid:\n")
		for _, entry := range summary.AvoidList {
			fmt.Fprintf(&b, "  - %s (%s confidence)\n", entry.Symbol, entry.Confidence)
		}
	}

	return b.String()
}
