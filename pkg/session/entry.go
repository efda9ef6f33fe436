package session

import "encoding/json"

// EntryType discriminates the variants of a SessionEntry (spec §3).
type EntryType string

const (
	EntryMessage       EntryType = "message"
	EntryCustomMessage EntryType = "custom_message"
	EntryModelChange   EntryType = "model_change"
	EntrySummary       EntryType = "summary"
)

// CustomMessagePayload is an opaque annotation that participates in context
// but is always a valid compaction cut point.
type CustomMessagePayload struct {
	CustomType string         `json:"customType"`
	Content    any            `json:"content,omitempty"`
	Display    bool           `json:"display"`
}

// ModelChangePayload records a mid-session model switch.
type ModelChangePayload struct {
	Provider string `json:"provider"`
	ModelID  string `json:"modelId"`
}

// SummaryPayload is produced by compaction; it semantically replaces the
// entries in ReplacedRange (inclusive, [firstID, lastID]).
type SummaryPayload struct {
	SummaryText   string    `json:"summaryText"`
	ReplacedRange [2]string `json:"replacedRange"`
}

// Entry is an immutable node in the SessionJournal tree (spec §3/§4.2).
// Field names are camelCase on the wire per spec §6. Only message entries
// nest their payload under a "message" key on the wire; custom_message,
// model_change, and summary entries flatten their payload fields directly
// onto the entry object (spec §6's literal NDJSON example), so MarshalJSON/
// UnmarshalJSON below translate between that wire shape and these typed
// fields rather than relying on struct tags alone.
type Entry struct {
	ID        string
	ParentID  *string
	Timestamp int64
	Type      EntryType

	Message       *Message
	CustomMessage *CustomMessagePayload
	ModelChange   *ModelChangePayload
	Summary       *SummaryPayload
}

// entryWire is the on-disk/wire shape: id/parentId/timestamp/type plus
// whichever payload fields apply to Type, flattened.
type entryWire struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parentId"`
	Timestamp int64     `json:"timestamp"`
	Type      EntryType `json:"type"`

	Message *Message `json:"message,omitempty"`

	CustomType string `json:"customType,omitempty"`
	Content    any    `json:"content,omitempty"`
	Display    bool   `json:"display,omitempty"`

	Provider string `json:"provider,omitempty"`
	ModelID  string `json:"modelId,omitempty"`

	SummaryText   string    `json:"summaryText,omitempty"`
	ReplacedRange [2]string `json:"replacedRange,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{ID: e.ID, ParentID: e.ParentID, Timestamp: e.Timestamp, Type: e.Type, Message: e.Message}
	if cm := e.CustomMessage; cm != nil {
		w.CustomType = cm.CustomType
		w.Content = cm.Content
		w.Display = cm.Display
	}
	if mc := e.ModelChange; mc != nil {
		w.Provider = mc.Provider
		w.ModelID = mc.ModelID
	}
	if s := e.Summary; s != nil {
		w.SummaryText = s.SummaryText
		w.ReplacedRange = s.ReplacedRange
	}
	return json.Marshal(w)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.ParentID = w.ParentID
	e.Timestamp = w.Timestamp
	e.Type = w.Type
	e.Message = w.Message
	// Normalize a legacy toolUseId onto the canonical toolCallId so it is
	// re-encoded as toolCallId.
	if m := e.Message; m != nil && m.ToolCallID == "" && m.ToolUseID != "" {
		m.ToolCallID, m.ToolUseID = m.ToolUseID, ""
	}
	e.CustomMessage = nil
	e.ModelChange = nil
	e.Summary = nil

	switch w.Type {
	case EntryCustomMessage:
		e.CustomMessage = &CustomMessagePayload{CustomType: w.CustomType, Content: w.Content, Display: w.Display}
	case EntryModelChange:
		e.ModelChange = &ModelChangePayload{Provider: w.Provider, ModelID: w.ModelID}
	case EntrySummary:
		e.Summary = &SummaryPayload{SummaryText: w.SummaryText, ReplacedRange: w.ReplacedRange}
	}
	return nil
}

// IsValidCutCandidateType reports whether this entry's type can ever be a
// compaction cut point irrespective of position (spec §4.3): message
// entries with role user/assistant, or any custom_message. ToolResult
// messages and summary/model_change entries are never cut points.
func (e *Entry) IsValidCutCandidateType() bool {
	switch e.Type {
	case EntryCustomMessage:
		return true
	case EntryMessage:
		if e.Message == nil {
			return false
		}
		return e.Message.Role == RoleUser || e.Message.Role == RoleAssistant
	default:
		return false
	}
}
