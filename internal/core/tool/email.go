package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Recipients accepts either a comma separated string or a list of addresses.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = splitAddresses(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("must be a string or a list of strings")
	}
	var out []string
	for _, item := range list {
		out = append(out, splitAddresses(item)...)
	}
	*r = out
	return nil
}

// Joined returns the addresses as a single comma separated header value.
func (r Recipients) Joined() string {
	return strings.Join(r, ", ")
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EmailInput is the input of send_email_tool.
type EmailInput struct {
	To                Recipients     `json:"to"`
	CC                Recipients     `json:"cc,omitempty"`
	BCC               Recipients     `json:"bcc,omitempty"`
	Subject           string         `json:"subject"`
	Text              string         `json:"text,omitempty"`
	HTML              string         `json:"html,omitempty"`
	FromEmail         string         `json:"from_email,omitempty"`
	FromName          string         `json:"from_name,omitempty"`
	ReplyTo           string         `json:"reply_to,omitempty"`
	Attachments       []string       `json:"attachments,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	CustomVariables   map[string]any `json:"custom_variables,omitempty"`
	Template          string         `json:"template,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
}

const (
	maxSubjectLength    = 998
	maxEmailAttachments = 10
	maxAttachmentURLLen = 512
	maxEmailTags        = 3
)

func (in *EmailInput) Validate() error {
	var errs ValidationErrors

	if len(in.To) == 0 {
		errs.Add("to", "at least one recipient is required")
	}
	checkAddresses(&errs, "to", in.To)
	checkAddresses(&errs, "cc", in.CC)
	checkAddresses(&errs, "bcc", in.BCC)

	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		errs.Add("subject", "must not be empty")
	}
	checkMaxLen(&errs, "subject", in.Subject, maxSubjectLength)

	if in.Text == "" && in.HTML == "" && in.Template == "" {
		errs.Add("text", "one of text, html or template is required")
	}
	if in.FromEmail != "" && !IsEmail(in.FromEmail) {
		errs.Add("from_email", "invalid email address")
	}
	if in.ReplyTo != "" && !IsEmail(in.ReplyTo) {
		errs.Add("reply_to", "invalid email address")
	}
	checkHTTPSURLs(&errs, "attachments", in.Attachments, maxEmailAttachments, maxAttachmentURLLen)
	if len(in.Tags) > maxEmailTags {
		errs.Add("tags", "at most %d tags allowed", maxEmailTags)
	}

	return errs.Err()
}

func checkAddresses(errs *ValidationErrors, field string, addrs Recipients) {
	for i, a := range addrs {
		if !IsEmail(a) {
			errs.Add(fmt.Sprintf("%s[%d]", field, i), "invalid email address %q", a)
		}
	}
}

// EmailForm builds the Mailgun form fields for a validated input.
// defaultFrom is used when the input carries no from_email.
func EmailForm(in EmailInput, defaultFrom string) (map[string][]string, error) {
	from := in.FromEmail
	if from == "" {
		from = defaultFrom
	}
	if from == "" {
		return nil, errors.New("no from email address configured")
	}

	form := map[string][]string{
		"to":      {in.To.Joined()},
		"subject": {in.Subject},
	}
	if in.FromName != "" {
		form["from"] = []string{fmt.Sprintf("%s <%s>", in.FromName, from)}
	} else {
		form["from"] = []string{from}
	}
	if len(in.CC) > 0 {
		form["cc"] = []string{in.CC.Joined()}
	}
	if len(in.BCC) > 0 {
		form["bcc"] = []string{in.BCC.Joined()}
	}
	if in.ReplyTo != "" {
		form["h:Reply-To"] = []string{in.ReplyTo}
	}

	if in.Template != "" {
		form["template"] = []string{in.Template}
		for k, v := range in.TemplateVariables {
			form["v:"+k] = []string{stringify(v)}
		}
	} else {
		if in.Text != "" {
			form["text"] = []string{in.Text}
		}
		if in.HTML != "" {
			form["html"] = []string{in.HTML}
		}
	}

	if len(in.Tags) > 0 {
		form["o:tag"] = append([]string(nil), in.Tags...)
	}
	for k, v := range in.CustomVariables {
		form["v:"+k] = []string{stringify(v)}
	}
	if len(in.Attachments) > 0 {
		form["attachment"] = append([]string(nil), in.Attachments...)
	}

	return form, nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// EmailResult is the provider acknowledgement.
type EmailResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// EmailError describes a provider rejection.
type EmailError struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// EmailOutput is the output of send_email_tool.
type EmailOutput struct {
	Tool    Name         `json:"tool"`
	Success bool         `json:"success"`
	Result  *EmailResult `json:"result,omitempty"`
	Error   *EmailError  `json:"error,omitempty"`
}
