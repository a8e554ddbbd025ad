package relay

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// Inbound is a chat frame as sent by a client.
type Inbound struct {
	Name    string
	Content string
	Type    string
}

// Outbound is every frame the relay sends: relayed messages and system notices alike.
type Outbound struct {
	Type    string `json:"type"`
	Src     string `json:"src"`
	Content string `json:"content"`
	Name    string `json:"name"`
	ID      string `json:"id"`
}

type wireInbound struct {
	Name    *string         `json:"name"`
	Content *string         `json:"content"`
	Type    json.RawMessage `json:"type"`
}

// ParseInbound decodes a client frame. Name and content must be present as strings;
// a missing or non-string type is read as empty and the frame is not relayed.
func ParseInbound(raw []byte) (Inbound, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Inbound{}, apperrors.New(apperrors.CodeFrameMalformed, "frame is not a JSON object")
	}

	var w wireInbound
	if err := json.Unmarshal(raw, &w); err != nil {
		return Inbound{}, apperrors.Wrap(err, apperrors.CodeFrameMalformed, "decode frame")
	}
	if w.Name == nil {
		return Inbound{}, apperrors.New(apperrors.CodeFrameMalformed, "frame has no name").WithMetadata("field", "name")
	}
	if w.Content == nil {
		return Inbound{}, apperrors.New(apperrors.CodeFrameMalformed, "frame has no content").WithMetadata("field", "content")
	}

	in := Inbound{Name: *w.Name, Content: *w.Content}
	if len(w.Type) > 0 {
		var typ string
		if json.Unmarshal(w.Type, &typ) == nil {
			in.Type = typ
		}
	}
	return in, nil
}
