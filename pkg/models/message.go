package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform a session is anchored to.
type ChannelType string

const (
	ChannelUI       ChannelType = "ui"
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelHeartbeat ChannelType = "heartbeat"
)

// Role indicates the message author type. Message is a tagged variant over
// these four roles; which fields are meaningful depends on Role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartType tags an entry of a multi-part message content list.
type PartType string

const (
	PartText     PartType = "text"
	PartImageRef PartType = "image_ref"
)

// Part is one element of a multi-part message content list: either a text
// run or a reference to an image (local path or http(s) URL).
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	Ref  string   `json:"ref,omitempty"`
	Mime string   `json:"mime,omitempty"`
}

// ToolCall is an LLM's request to invoke a tool, keyed by Name with
// arbitrary JSON arguments.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// toolCallWire mirrors ToolCall but accepts either "id", "tool_call_id" or
// "call_id" on ingress, per the spec's open question: the source system uses
// both interchangeably and an implementation must accept either, always
// emitting "id" canonically on egress.
type toolCallWire struct {
	ID         string         `json:"id,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	CallID     string         `json:"call_id,omitempty"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args"`
}

// UnmarshalJSON accepts id, tool_call_id or call_id interchangeably.
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	var w toolCallWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.ID
	if id == "" {
		id = w.ToolCallID
	}
	if id == "" {
		id = w.CallID
	}
	t.ID = id
	t.Name = w.Name
	t.Args = w.Args
	return nil
}

// MarshalJSON always emits "id" canonically.
func (t ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolCallWire{ID: t.ID, Name: t.Name, Args: t.Args})
}

// Message is the unified conversational unit flowing through the context
// manager and execution loop. Content is either a plain string or an ordered
// list of typed Parts; exactly one of Content/Parts is populated.
type Message struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	Parts       []Part         `json:"parts,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID  string         `json:"tool_call_id,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	Additional  map[string]any `json:"additional,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// HasToolCalls reports whether this is an Assistant message carrying
// tool_calls.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// IsMultipart reports whether Content is represented as typed Parts rather
// than a plain string.
func (m Message) IsMultipart() bool {
	return len(m.Parts) > 0
}

// Text returns the flattened text of the message: Content directly, or the
// concatenation of all text-typed Parts if the content is list-shaped.
func (m Message) Text() string {
	if !m.IsMultipart() {
		return m.Content
	}
	var buf bytes.Buffer
	for _, p := range m.Parts {
		if p.Type == PartText {
			buf.WriteString(p.Text)
		}
	}
	return buf.String()
}

// NewUserText builds a plain-text User message.
func NewUserText(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewAssistantText builds a plain-text Assistant message.
func NewAssistantText(content string) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now()}
}

// NewSystem builds a System message.
func NewSystem(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now()}
}

// NewToolResult builds a Tool message carrying the result of one call.
func NewToolResult(toolCallID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		CreatedAt:  time.Now(),
	}
}

// Session represents one conversation thread and its bounded message log.
type Session struct {
	SessionID        string         `json:"session_id"`
	Messages         []Message      `json:"messages"`
	ContextFiles     []string       `json:"context_files,omitempty"`
	LastSummaryIndex int            `json:"last_summary_index"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// MaxSessionMessages bounds Session.Messages; see TrimMessages.
const MaxSessionMessages = 200

// TrimMessages enforces the Session invariant: when len(messages) exceeds
// MaxSessionMessages, the oldest are dropped and LastSummaryIndex is
// decremented by the overflow, never below 0.
func (s *Session) TrimMessages() {
	overflow := len(s.Messages) - MaxSessionMessages
	if overflow <= 0 {
		return
	}
	s.Messages = append([]Message(nil), s.Messages[overflow:]...)
	s.LastSummaryIndex -= overflow
	if s.LastSummaryIndex < 0 {
		s.LastSummaryIndex = 0
	}
}

// AppendMessage appends m and bumps UpdatedAt.
func (s *Session) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now()
}
