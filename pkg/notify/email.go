// Package notify sends import summaries by email through Resend.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"

	importservice "github.com/FACorreiaa/smb-ledger/internal/domain/import/service"
)

var _ importservice.Notifier = (*EmailNotifier)(nil)

// sender is the part of the Resend emails API we use.
type sender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier emails import summaries to the company's notification address
type EmailNotifier struct {
	emails sender
	from   string
	logger *slog.Logger
}

// NewEmailNotifier creates a notifier. An empty API key disables sending.
func NewEmailNotifier(apiKey, from string, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{from: from, logger: logger}
	if apiKey != "" {
		n.emails = resend.NewClient(apiKey).Emails
	}
	return n
}

// NotifyImport implements importservice.Notifier
func (n *EmailNotifier) NotifyImport(ctx context.Context, s importservice.ImportSummary) error {
	if n.emails == nil {
		n.logger.WarnContext(ctx, "resend client not configured, skipping import summary",
			slog.String("job_id", s.JobID.String()))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.emails.Send(&resend.SendEmailRequest{
		From:    n.from,
		To:      []string{s.To},
		Subject: subject(s),
		Html:    summaryHTML(s),
	})
	if err != nil {
		return fmt.Errorf("failed to send import summary: %w", err)
	}
	return nil
}

func subject(s importservice.ImportSummary) string {
	if s.Failed > 0 {
		return fmt.Sprintf("Importación de %s: %d registros, %d con errores", s.EntityType, s.Imported, s.Failed)
	}
	return fmt.Sprintf("Importación de %s: %d registros", s.EntityType, s.Imported)
}

func summaryHTML(s importservice.ImportSummary) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: sans-serif; color: #1f2937; margin: 0; padding: 32px 0; }
    .container { max-width: 560px; margin: 0 auto; }
    .stats td { padding: 4px 16px 4px 0; }
    .errors { color: #b91c1c; font-size: 14px; }
  </style>
</head>
<body>
  <div class="container">
`)
	fmt.Fprintf(&b, "    <h2>%s</h2>\n", html.EscapeString(s.CompanyName))
	if s.FileName != "" {
		fmt.Fprintf(&b, "    <p>Archivo: %s</p>\n", html.EscapeString(s.FileName))
	}
	b.WriteString("    <table class=\"stats\">\n")
	fmt.Fprintf(&b, "      <tr><td>Importados</td><td>%d</td></tr>\n", s.Imported)
	fmt.Fprintf(&b, "      <tr><td>Omitidos</td><td>%d</td></tr>\n", s.Skipped)
	fmt.Fprintf(&b, "      <tr><td>Con errores</td><td>%d</td></tr>\n", s.Failed)
	if s.Total != "" {
		fmt.Fprintf(&b, "      <tr><td>Total</td><td>%s</td></tr>\n", html.EscapeString(s.Total))
	}
	b.WriteString("    </table>\n")

	if len(s.Errors) > 0 {
		b.WriteString("    <ul class=\"errors\">\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "      <li>%s</li>\n", html.EscapeString(e))
		}
		b.WriteString("    </ul>\n")
		if s.Failed > len(s.Errors) {
			fmt.Fprintf(&b, "    <p>... y %d errores más</p>\n", s.Failed-len(s.Errors))
		}
	}
	b.WriteString("  </div>\n</body>\n</html>\n")
	return b.String()
}
