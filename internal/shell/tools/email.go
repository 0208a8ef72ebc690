package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// MailgunBaseURL is the Mailgun API root.
const MailgunBaseURL = "https://api.mailgun.net/v3"

// SendEmail delivers email through Mailgun. Provider rejections are reported
// inside a successful tool output.
type SendEmail struct {
	client      *Client
	apiKey      string
	domain      string
	defaultFrom string
	logger      *slog.Logger
}

// NewSendEmail creates the send_email_tool handler. Settings: domain, from_email.
func NewSendEmail(cfg Config, logger *slog.Logger, opts ...ClientOption) *SendEmail {
	if logger == nil {
		logger = slog.Default()
	}
	t := &SendEmail{
		client:      NewClient("Mailgun", cfg.BaseURL(MailgunBaseURL), opts...),
		apiKey:      cfg.APIKey,
		domain:      cfg.Setting("domain"),
		defaultFrom: cfg.Setting("from_email"),
		logger:      logger,
	}
	if t.apiKey == "" {
		logger.Warn("Mailgun API key not configured")
	}
	if t.domain == "" {
		logger.Warn("Mailgun domain not configured")
	}
	return t
}

// Definition registers the tool.
func (t *SendEmail) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.SendEmail,
		Description: "Send an email with optional HTML, attachments, tags and templates.",
		Inputs:      []any{tool.EmailInput{}},
		Outputs:     []any{tool.EmailOutput{}},
		Examples: []tool.Example{
			{Tool: tool.SendEmail, ToolInput: map[string]any{
				"to":        "recipient@example.com",
				"subject":   "Hello from Mailgun!",
				"text":      "This is a test email sent via Mailgun API.",
				"from_name": "MyApp",
			}},
			{Tool: tool.SendEmail, ToolInput: map[string]any{
				"to":          []string{"user1@example.com", "user2@example.com"},
				"subject":     "Newsletter Update",
				"html":        "<h1>Newsletter</h1><p>Check out our latest updates!</p>",
				"attachments": []string{"https://example.com/newsletter.pdf"},
				"tags":        []string{"newsletter", "marketing"},
			}},
			{Tool: tool.SendEmail, ToolInput: map[string]any{
				"to":                 "customer@example.com",
				"subject":            "Welcome {{name}}!",
				"template":           "welcome_template",
				"template_variables": map[string]any{"name": "John Doe", "company": "Acme Corp"},
			}},
		},
		Decode: tool.DecoderFor[tool.EmailInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.EmailInput))
		},
	}
}

// Run sends in.
func (t *SendEmail) Run(ctx context.Context, in tool.EmailInput) (tool.EmailOutput, error) {
	if t.apiKey == "" {
		return tool.EmailOutput{}, errors.New("Mailgun client not initialized - check API key configuration")
	}
	if t.domain == "" {
		return tool.EmailOutput{}, errors.New("Mailgun domain not configured")
	}

	failed := func(msg string, code int) tool.EmailOutput {
		return tool.EmailOutput{Tool: tool.SendEmail, Success: false, Error: &tool.EmailError{Error: msg, Code: code}}
	}

	form, err := tool.EmailForm(in, t.defaultFrom)
	if err != nil {
		return failed("Email sending failed: "+err.Error(), 0), nil
	}

	resp, err := t.client.Do(ctx, Call{
		Method:      http.MethodPost,
		Path:        "/" + url.PathEscape(t.domain) + "/messages",
		Body:        []byte(url.Values(form).Encode()),
		ContentType: "application/x-www-form-urlencoded",
		BasicAuth:   &[2]string{"api", t.apiKey},
	})
	if err != nil {
		t.logger.Error("email send failed", "error", err)
		return failed("Email sending failed: "+err.Error(), 0), nil
	}

	var body struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	decodeErr := resp.DecodeJSON(&body)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("Mailgun API error: %d", resp.StatusCode)
		if decodeErr == nil && body.Message != "" {
			msg += " - " + body.Message
		}
		return failed(msg, resp.StatusCode), nil
	}

	if body.Message == "" {
		body.Message = "Email sent successfully"
	}
	t.logger.Info("email sent", "id", body.ID, "recipients", len(in.To))
	return tool.EmailOutput{
		Tool:    tool.SendEmail,
		Success: true,
		Result:  &tool.EmailResult{ID: body.ID, Message: body.Message},
	}, nil
}
