package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// LoopMessageBaseURL is the Loop Message API root.
const LoopMessageBaseURL = "https://server.loopmessage.com/api/v1"

// LoopMessage sends iMessages and polls their delivery.
type LoopMessage struct {
	svc        loopService
	configured bool
}

// NewLoopMessage creates the loop_message_tool handler. The authorization
// key is the entry's api_key (or settings.authorization_key) and the
// secret key is settings.secret_key.
func NewLoopMessage(cfg Config, opts ...ClientOption) *LoopMessage {
	authKey := cfg.APIKey
	if authKey == "" {
		authKey = cfg.Setting("authorization_key")
	}
	secret := cfg.Setting("secret_key")

	header := http.Header{}
	header.Set("Authorization", authKey)
	header.Set("Loop-Secret-Key", secret)
	return &LoopMessage{
		configured: authKey != "" && secret != "",
		svc: loopService{
			client:       NewClient("Loop Message", cfg.BaseURL(LoopMessageBaseURL), opts...),
			header:       header,
			unauthorized: "Invalid authorization key",
			notFound:     "Message ID not found",
		},
	}
}

// Definition registers the tool.
func (t *LoopMessage) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.LoopMessage,
		Description: "Send iMessage or SMS messages, group messages, voice memos and reactions, or poll message status.",
		Inputs: []any{
			tool.MessageSingleInput{},
			tool.MessageGroupInput{},
			tool.MessageAudioInput{},
			tool.MessageReactionInput{},
			tool.MessageStatusInput{},
		},
		Outputs: []any{
			tool.MessageSingleOutput{},
			tool.MessageGroupOutput{},
			tool.MessageStatusOutput{},
		},
		Examples: []tool.Example{
			{Tool: tool.LoopMessage, ToolInput: map[string]any{
				"recipient":   "+13231112233",
				"text":        "Hello from the agent!",
				"sender_name": "your.sender@imsg.co",
			}},
			{Tool: tool.LoopMessage, ToolInput: map[string]any{
				"group":       "2BC4FD6A-CE49-439F-81DF-E895C09CA49C",
				"text":        "Hello group!",
				"sender_name": "your.sender@imsg.co",
			}},
			{Tool: tool.LoopMessage, ToolInput: map[string]any{
				"recipient":   "+13231112233",
				"text":        "Voice note",
				"media_url":   "https://example.com/audio.mp3",
				"sender_name": "your.sender@imsg.co",
			}},
			{Tool: tool.LoopMessage, ToolInput: map[string]any{"message_id": "3E3F8A6C-AC0B-4A1E-9F2B-6C1D8E7F9A0B"}},
		},
		Decode:  tool.DecodeMessageInput,
		Handler: t.Handle,
	}
}

// Handle dispatches on the decoded variant.
func (t *LoopMessage) Handle(ctx context.Context, input any) (any, error) {
	if !t.configured {
		return nil, errors.New("Loop Message API keys not configured")
	}
	switch in := input.(type) {
	case *tool.MessageStatusInput:
		return t.status(ctx, in)
	case *tool.MessageGroupInput:
		return t.sendGroup(ctx, in)
	}

	body, ok := tool.SendBody(input)
	if !ok {
		return nil, fmt.Errorf("unsupported loop message input %T", input)
	}
	return t.send(ctx, body)
}

type sendReply struct {
	loopReply
	MessageID string             `json:"message_id"`
	Recipient string             `json:"recipient"`
	Text      string             `json:"text"`
	Group     *tool.MessageGroup `json:"group"`
}

func (t *LoopMessage) post(ctx context.Context, body tool.MessageSendBody) (sendReply, error) {
	var resp sendReply
	if err := t.svc.call(ctx, http.MethodPost, "/message/send/", body, &resp); err != nil {
		return sendReply{}, err
	}
	if err := resp.check(tool.MessageErrorMessage); err != nil {
		return sendReply{}, err
	}
	return resp, nil
}

func (t *LoopMessage) send(ctx context.Context, body tool.MessageSendBody) (tool.MessageSingleOutput, error) {
	resp, err := t.post(ctx, body)
	if err != nil {
		return tool.MessageSingleOutput{}, err
	}
	return tool.MessageSingleOutput{
		Tool:      tool.LoopMessage,
		Success:   true,
		MessageID: resp.MessageID,
		Recipient: firstNonEmpty(resp.Recipient, body.Recipient),
		Text:      firstNonEmpty(resp.Text, body.Text),
	}, nil
}

func (t *LoopMessage) sendGroup(ctx context.Context, in *tool.MessageGroupInput) (tool.MessageGroupOutput, error) {
	body, _ := tool.SendBody(in)
	resp, err := t.post(ctx, body)
	if err != nil {
		return tool.MessageGroupOutput{}, err
	}

	group := tool.MessageGroup{GroupID: in.Group}
	if resp.Group != nil {
		group = *resp.Group
		group.GroupID = firstNonEmpty(group.GroupID, in.Group)
	}
	if group.Participants == nil {
		group.Participants = []string{}
	}
	return tool.MessageGroupOutput{
		Tool:      tool.LoopMessage,
		Success:   true,
		MessageID: resp.MessageID,
		Group:     group,
		Text:      firstNonEmpty(resp.Text, in.Text),
	}, nil
}

func (t *LoopMessage) status(ctx context.Context, in *tool.MessageStatusInput) (tool.MessageStatusOutput, error) {
	var result tool.MessageStatusResult
	path := "/message/status/" + url.PathEscape(in.MessageID) + "/"
	if err := t.svc.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return tool.MessageStatusOutput{}, err
	}
	result.MessageID = firstNonEmpty(result.MessageID, in.MessageID)
	result.Status = firstNonEmpty(result.Status, "unknown")
	return tool.MessageStatusOutput{Tool: tool.LoopMessage, Result: result}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
