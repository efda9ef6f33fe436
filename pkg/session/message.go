// Package session provides the domain types shared by the agent loop,
// journal, compaction engine, and tool executor: messages, content blocks,
// journal entries, and usage counters.
package session

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// StopReason describes why an Assistant message stopped generating.
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonToolUse       StopReason = "tool_use"
	StopReasonMaxTokens     StopReason = "max_tokens"
	StopReasonContentFilter StopReason = "content_filter"
	StopReasonAborted       StopReason = "aborted"
	StopReasonError         StopReason = "error"
)

// ContentBlockType discriminates the variants of ContentBlock.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentThinking   ContentBlockType = "thinking"
	ContentToolCall   ContentBlockType = "tool_call"
	ContentToolResult ContentBlockType = "tool_result_text"
	ContentImage      ContentBlockType = "image"
)

// ContentBlock is a closed sum type over message content. Exactly one of
// the typed fields is populated, selected by Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	Text *TextContent           `json:"text,omitempty"`
	Thinking *ThinkingContent   `json:"thinking,omitempty"`
	ToolCall *ToolCall          `json:"toolCall,omitempty"`
	ToolResultText *TextContent `json:"toolResultText,omitempty"`
	Image *ImageContent         `json:"image,omitempty"`
}

// TextContent is plain text content.
type TextContent struct {
	Text string `json:"text"`
}

// ThinkingContent is a model reasoning/thinking block.
type ThinkingContent struct {
	Text string `json:"text"`
}

// ImageContent attaches an image by inline data or URL.
type ImageContent struct {
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCall is an Assistant-issued request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: &TextContent{Text: text}}
}

func ThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentThinking, Thinking: &ThinkingContent{Text: text}}
}

func ToolCallBlock(tc ToolCall) ContentBlock {
	return ContentBlock{Type: ContentToolCall, ToolCall: &tc}
}

// Text concatenates every TextContent/ToolResultText block in order. Images,
// thinking blocks, and tool-call argument payloads are excluded (they carry
// no text-extractable content, per spec §4.3's token-estimation rule).
func Text(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		switch b.Type {
		case ContentText:
			if b.Text != nil {
				out += b.Text.Text
			}
		case ContentToolResult:
			if b.ToolResultText != nil {
				out += b.ToolResultText.Text
			}
		}
	}
	return out
}

// Usage tracks token accounting for a single Assistant turn.
type Usage struct {
	Input       int  `json:"input,omitempty"`
	Output      int  `json:"output,omitempty"`
	CacheRead   int  `json:"cacheRead,omitempty"`
	CacheWrite  int  `json:"cacheWrite,omitempty"`
	TotalTokens *int `json:"totalTokens,omitempty"`
}

// Total returns TotalTokens if present, else the any-present sum of the
// individual counters (spec §3: "any-present-sum semantics for total").
func (u Usage) Total() int {
	if u.TotalTokens != nil {
		return *u.TotalTokens
	}
	return u.Input + u.Output + u.CacheRead + u.CacheWrite
}

// Message is the polymorphic conversation unit. Exactly one of the
// role-specific fields is meaningful, selected by Role.
type Message struct {
	Role Role `json:"role"`

	// User / Assistant text+block content. For ToolResult this holds the
	// result's content blocks.
	Content []ContentBlock `json:"content,omitempty"`

	// Assistant-only.
	StopReason *StopReason `json:"stopReason,omitempty"`
	Usage      *Usage      `json:"usage,omitempty"`

	// ToolResult-only. ToolCallID is canonical on output; ToolUseID is
	// accepted on input for cross-version compatibility (spec §9).
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolUseID  string `json:"toolUseId,omitempty"`
	IsError    bool   `json:"isError,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ResolvedToolCallID returns ToolCallID, falling back to ToolUseID, per
// spec §9's dual-acceptance rule.
func (m Message) ResolvedToolCallID() string {
	if m.ToolCallID != "" {
		return m.ToolCallID
	}
	return m.ToolUseID
}

// ToolCalls returns every ToolCallBlock embedded in an Assistant message's
// content, in order.
func (m Message) ToolCalls() []ToolCall {
	if m.Role != RoleAssistant {
		return nil
	}
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == ContentToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// NewUserMessage builds a User message from plain text and optional images.
func NewUserMessage(text string, images ...ImageContent) Message {
	blocks := []ContentBlock{TextBlock(text)}
	for _, img := range images {
		im := img
		blocks = append(blocks, ContentBlock{Type: ContentImage, Image: &im})
	}
	return Message{Role: RoleUser, Content: blocks, Timestamp: time.Now()}
}
