package tool

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageText        = 10000
	maxMessageAttachments = 3
	maxMessageURLLen      = 256
	maxPassthroughLen     = 1000
	maxCallbackLen        = 256
	minMessageTimeout     = 5
)

// MessageEffects lists the accepted iMessage screen and bubble effects.
var MessageEffects = []string{
	"slam", "loud", "gentle", "invisibleInk", "echo", "spotlight",
	"balloons", "confetti", "love", "lasers", "fireworks",
	"shootingStar", "celebration",
}

// MessageReactions lists accepted tapback reactions; a leading "-" removes one.
var MessageReactions = []string{
	"love", "like", "dislike", "laugh", "exclaim", "question",
	"-love", "-like", "-dislike", "-laugh", "-exclaim", "-question",
}

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".caf", ".aac"}

// MessageCallback holds the delivery callback fields shared by all send variants.
type MessageCallback struct {
	StatusCallback       string `json:"status_callback,omitempty"`
	StatusCallbackHeader string `json:"status_callback_header,omitempty"`
	Passthrough          string `json:"passthrough,omitempty"`
}

func (c MessageCallback) validate(errs *ValidationErrors) {
	checkMaxLen(errs, "status_callback", c.StatusCallback, maxCallbackLen)
	checkMaxLen(errs, "status_callback_header", c.StatusCallbackHeader, maxCallbackLen)
	checkMaxLen(errs, "passthrough", c.Passthrough, maxPassthroughLen)
}

func validateSender(errs *ValidationErrors, sender string) {
	if strings.TrimSpace(sender) == "" {
		errs.Add("sender_name", "field required")
	}
}

func validateText(errs *ValidationErrors, text string) {
	checkMaxLen(errs, "text", text, maxMessageText)
}

func normalizeRecipient(errs *ValidationErrors, recipient *string) {
	r, err := NormalizeContact(*recipient)
	if err != nil {
		errs.Add("recipient", "%v", err)
		return
	}
	*recipient = r
}

// MessageSingleInput sends a message to one recipient.
type MessageSingleInput struct {
	Recipient   string   `json:"recipient"`
	Text        string   `json:"text"`
	SenderName  string   `json:"sender_name"`
	Attachments []string `json:"attachments,omitempty"`
	Timeout     *int     `json:"timeout,omitempty"`
	ReplyToID   string   `json:"reply_to_id,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Effect      string   `json:"effect,omitempty"`
	Service     string   `json:"service,omitempty"`
	MessageCallback
}

func (in *MessageSingleInput) ApplyDefaults() {
	if in.Service == "" {
		in.Service = "imessage"
	}
}

func (in *MessageSingleInput) Validate() error {
	var errs ValidationErrors
	normalizeRecipient(&errs, &in.Recipient)
	validateText(&errs, in.Text)
	validateSender(&errs, in.SenderName)
	checkHTTPSURLs(&errs, "attachments", in.Attachments, maxMessageAttachments, maxMessageURLLen)
	if in.Timeout != nil && *in.Timeout < minMessageTimeout {
		errs.Add("timeout", "must be at least %d seconds", minMessageTimeout)
	}
	if in.Effect != "" && !oneOf(in.Effect, MessageEffects...) {
		errs.Add("effect", "must be one of: %s", strings.Join(MessageEffects, ", "))
	}
	if !oneOf(in.Service, "imessage", "sms") {
		errs.Add("service", "must be 'imessage' or 'sms'")
	}
	in.MessageCallback.validate(&errs)
	return errs.Err()
}

// MessageGroupInput sends a message to an iMessage group.
type MessageGroupInput struct {
	Group       string   `json:"group"`
	Text        string   `json:"text"`
	SenderName  string   `json:"sender_name"`
	Attachments []string `json:"attachments,omitempty"`
	Timeout     *int     `json:"timeout,omitempty"`
	MessageCallback
}

func (in *MessageGroupInput) Validate() error {
	var errs ValidationErrors
	in.Group = strings.TrimSpace(in.Group)
	if in.Group == "" {
		errs.Add("group", "must not be empty")
	}
	validateText(&errs, in.Text)
	validateSender(&errs, in.SenderName)
	checkHTTPSURLs(&errs, "attachments", in.Attachments, maxMessageAttachments, maxMessageURLLen)
	if in.Timeout != nil && *in.Timeout < minMessageTimeout {
		errs.Add("timeout", "must be at least %d seconds", minMessageTimeout)
	}
	in.MessageCallback.validate(&errs)
	return errs.Err()
}

// MessageAudioInput sends a voice memo.
type MessageAudioInput struct {
	Recipient    string `json:"recipient"`
	Text         string `json:"text"`
	MediaURL     string `json:"media_url"`
	SenderName   string `json:"sender_name"`
	AudioMessage bool   `json:"audio_message"`
	MessageCallback
}

func (in *MessageAudioInput) ApplyDefaults() {
	in.AudioMessage = true
}

func (in *MessageAudioInput) Validate() error {
	var errs ValidationErrors
	normalizeRecipient(&errs, &in.Recipient)
	validateText(&errs, in.Text)
	validateSender(&errs, in.SenderName)
	switch {
	case !strings.HasPrefix(in.MediaURL, "https://"):
		errs.Add("media_url", "must start with https://")
	case utf8.RuneCountInString(in.MediaURL) > maxMessageURLLen:
		errs.Add("media_url", "exceeds %d characters", maxMessageURLLen)
	case !hasAudioExtension(in.MediaURL):
		errs.Add("media_url", "audio file must be one of: %s", strings.Join(audioExtensions, ", "))
	}
	in.MessageCallback.validate(&errs)
	return errs.Err()
}

func hasAudioExtension(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// MessageReactionInput reacts to an earlier message.
type MessageReactionInput struct {
	Recipient  string `json:"recipient"`
	Text       string `json:"text"`
	MessageID  string `json:"message_id"`
	SenderName string `json:"sender_name"`
	Reaction   string `json:"reaction"`
	MessageCallback
}

func (in *MessageReactionInput) Validate() error {
	var errs ValidationErrors
	normalizeRecipient(&errs, &in.Recipient)
	validateText(&errs, in.Text)
	validateSender(&errs, in.SenderName)
	in.MessageID = strings.TrimSpace(in.MessageID)
	if in.MessageID == "" {
		errs.Add("message_id", "must not be empty")
	}
	if !oneOf(in.Reaction, MessageReactions...) {
		errs.Add("reaction", "must be one of: %s", strings.Join(MessageReactions, ", "))
	}
	in.MessageCallback.validate(&errs)
	return errs.Err()
}

// MessageStatusInput polls delivery status.
type MessageStatusInput struct {
	MessageID string `json:"message_id"`
}

func (in *MessageStatusInput) Validate() error {
	var errs ValidationErrors
	in.MessageID = strings.TrimSpace(in.MessageID)
	if in.MessageID == "" {
		errs.Add("message_id", "must not be empty")
	}
	return errs.Err()
}

// DecodeMessageInput picks the message variant by the fields present.
func DecodeMessageInput(raw json.RawMessage) (any, error) {
	present, err := fieldsPresent(raw, "group", "media_url", "reaction", "recipient", "message_id")
	if err != nil {
		return nil, err
	}
	switch {
	case present["group"]:
		return Decode[MessageGroupInput](raw)
	case present["media_url"]:
		return Decode[MessageAudioInput](raw)
	case present["reaction"]:
		return Decode[MessageReactionInput](raw)
	case present["recipient"]:
		return Decode[MessageSingleInput](raw)
	case present["message_id"]:
		return Decode[MessageStatusInput](raw)
	}
	return nil, &ValidationErrors{{Field: "tool_input", Message: "one of recipient, group or message_id is required"}}
}

// MessageSendBody is the JSON body posted to the send endpoint.
// Zero values are omitted.
type MessageSendBody struct {
	Recipient            string   `json:"recipient,omitempty"`
	Group                string   `json:"group,omitempty"`
	Text                 string   `json:"text"`
	SenderName           string   `json:"sender_name"`
	Attachments          []string `json:"attachments,omitempty"`
	Timeout              int      `json:"timeout,omitempty"`
	Passthrough          string   `json:"passthrough,omitempty"`
	StatusCallback       string   `json:"status_callback,omitempty"`
	StatusCallbackHeader string   `json:"status_callback_header,omitempty"`
	ReplyToID            string   `json:"reply_to_id,omitempty"`
	Subject              string   `json:"subject,omitempty"`
	Effect               string   `json:"effect,omitempty"`
	Service              string   `json:"service,omitempty"`
	MediaURL             string   `json:"media_url,omitempty"`
	AudioMessage         bool     `json:"audio_message,omitempty"`
	MessageID            string   `json:"message_id,omitempty"`
	Reaction             string   `json:"reaction,omitempty"`
}

// SendBody builds the request body for a send variant. The service field is
// only sent when it differs from the default.
func SendBody(input any) (MessageSendBody, bool) {
	switch in := input.(type) {
	case *MessageSingleInput:
		b := MessageSendBody{
			Recipient:   in.Recipient,
			Text:        in.Text,
			SenderName:  in.SenderName,
			Attachments: in.Attachments,
			ReplyToID:   in.ReplyToID,
			Subject:     in.Subject,
			Effect:      in.Effect,
		}
		if in.Timeout != nil {
			b.Timeout = *in.Timeout
		}
		if in.Service != "" && in.Service != "imessage" {
			b.Service = in.Service
		}
		b.setCallback(in.MessageCallback)
		return b, true
	case *MessageGroupInput:
		b := MessageSendBody{
			Group:       in.Group,
			Text:        in.Text,
			SenderName:  in.SenderName,
			Attachments: in.Attachments,
		}
		if in.Timeout != nil {
			b.Timeout = *in.Timeout
		}
		b.setCallback(in.MessageCallback)
		return b, true
	case *MessageAudioInput:
		b := MessageSendBody{
			Recipient:    in.Recipient,
			Text:         in.Text,
			SenderName:   in.SenderName,
			MediaURL:     in.MediaURL,
			AudioMessage: in.AudioMessage,
		}
		b.setCallback(in.MessageCallback)
		return b, true
	case *MessageReactionInput:
		b := MessageSendBody{
			Recipient:  in.Recipient,
			Text:       in.Text,
			SenderName: in.SenderName,
			MessageID:  in.MessageID,
			Reaction:   in.Reaction,
		}
		b.setCallback(in.MessageCallback)
		return b, true
	}
	return MessageSendBody{}, false
}

func (b *MessageSendBody) setCallback(c MessageCallback) {
	b.Passthrough = c.Passthrough
	b.StatusCallback = c.StatusCallback
	b.StatusCallbackHeader = c.StatusCallbackHeader
}

// MessageGroup describes an iMessage group.
type MessageGroup struct {
	GroupID      string   `json:"group_id"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
}

// MessageSingleOutput is returned for single, audio and reaction sends.
type MessageSingleOutput struct {
	Tool      Name   `json:"tool"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// MessageGroupOutput is returned for group sends.
type MessageGroupOutput struct {
	Tool      Name         `json:"tool"`
	Success   bool         `json:"success"`
	MessageID string       `json:"message_id"`
	Group     MessageGroup `json:"group"`
	Text      string       `json:"text"`
}

// MessageStatusResult is the delivery state of a message.
type MessageStatusResult struct {
	MessageID   string `json:"message_id"`
	Status      string `json:"status"`
	Recipient   string `json:"recipient,omitempty"`
	Text        string `json:"text,omitempty"`
	Sandbox     *bool  `json:"sandbox,omitempty"`
	ErrorCode   *int   `json:"error_code,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
	LastUpdate  string `json:"last_update,omitempty"`
}

// MessageStatusOutput is returned for status polls.
type MessageStatusOutput struct {
	Tool   Name                `json:"tool"`
	Result MessageStatusResult `json:"result"`
}
