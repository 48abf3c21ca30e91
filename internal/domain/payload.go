package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PayloadKind discriminates the shapes a run input or output can take.
type PayloadKind int

const (
	// PayloadAbsent covers missing values and every falsy JSON scalar.
	PayloadAbsent PayloadKind = iota
	// PayloadText is a bare string; the string is the content.
	PayloadText
	// PayloadMessage is a message-shaped object.
	PayloadMessage
	// PayloadList is an ordered sequence of payloads.
	PayloadList
	// PayloadOpaque is any other scalar. It never yields a message.
	PayloadOpaque
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadAbsent:
		return "absent"
	case PayloadText:
		return "text"
	case PayloadMessage:
		return "message"
	case PayloadList:
		return "list"
	case PayloadOpaque:
		return "opaque"
	}
	return fmt.Sprintf("PayloadKind(%d)", int(k))
}

// MessageValue is a message-shaped item inside a payload.
// A nil Content means the item had no content key at all.
type MessageValue struct {
	Role        string          `json:"role,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Enrichments json.RawMessage `json:"enrichments,omitempty"`
}

// Payload is the input or output of a run.
type Payload struct {
	Kind    PayloadKind
	Text    string
	Message *MessageValue
	Items   []Payload

	raw json.RawMessage
}

// TextPayload returns a bare string payload.
func TextPayload(s string) Payload {
	if s == "" {
		return Payload{}
	}
	return Payload{Kind: PayloadText, Text: s}
}

// MessagePayload returns a message payload with string content.
func MessagePayload(role, content string) Payload {
	return Payload{Kind: PayloadMessage, Message: &MessageValue{Role: role, Content: StringContent(content)}}
}

// ListPayload returns a list payload of the given items.
func ListPayload(items ...Payload) Payload {
	if items == nil {
		items = []Payload{}
	}
	return Payload{Kind: PayloadList, Items: items}
}

// StringContent encodes s as JSON message content.
func StringContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// IsAbsent reports whether the payload carries nothing.
func (p Payload) IsAbsent() bool {
	return p.Kind == PayloadAbsent
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadText:
		return json.Marshal(p.Text)
	case PayloadMessage:
		if p.Message == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(p.Message)
	case PayloadList:
		items := p.Items
		if items == nil {
			items = []Payload{}
		}
		return json.Marshal(items)
	case PayloadOpaque:
		if len(p.raw) > 0 {
			return p.raw, nil
		}
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = Payload{}
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case 'n':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode text payload: %w", err)
		}
		*p = TextPayload(s)
		return nil
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return fmt.Errorf("failed to decode list payload: %w", err)
		}
		items := make([]Payload, len(raws))
		for i, raw := range raws {
			if err := items[i].UnmarshalJSON(raw); err != nil {
				return err
			}
		}
		*p = Payload{Kind: PayloadList, Items: items}
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("failed to decode message payload: %w", err)
		}
		msg := &MessageValue{}
		if raw, ok := fields["role"]; ok {
			// Non-string roles fall back to the caller's hint.
			_ = json.Unmarshal(raw, &msg.Role)
		}
		if raw, ok := fields["content"]; ok {
			msg.Content = raw
		}
		if raw, ok := fields["enrichments"]; ok && !bytes.Equal(raw, []byte("null")) {
			msg.Enrichments = raw
		}
		*p = Payload{Kind: PayloadMessage, Message: msg}
		return nil
	case 'f':
		return nil
	case 't':
		*p = Payload{Kind: PayloadOpaque, raw: append(json.RawMessage(nil), data...)}
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("unsupported payload: %s", data)
	}
	if n == 0 {
		return nil
	}
	*p = Payload{Kind: PayloadOpaque, raw: append(json.RawMessage(nil), data...)}
	return nil
}
