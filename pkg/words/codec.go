package words

import (
	"bytes"
	"encoding/json"

	"github.com/fluxorio/wordbridge/pkg/core"
)

// wireUnit accepts both the canonical field names and their aliases.
type wireUnit struct {
	Word     *string `json:"word"`
	Text     *string `json:"text"`
	Frontend string  `json:"frontend"`
	Backend  string  `json:"backend"`
	Origin   string  `json:"origin"`
}

func (w wireUnit) text() (string, bool) {
	switch {
	case w.Word != nil:
		return *w.Word, true
	case w.Text != nil:
		return *w.Text, true
	default:
		return "", false
	}
}

// Encode returns the wire form of u.
func (u WorkUnit) Encode() ([]byte, error) {
	return core.JSONEncode(u)
}

// Encode returns the wire form of r.
func (r ReplyPayload) Encode() ([]byte, error) {
	return core.JSONEncode(r)
}

// DecodeWorkUnit parses a WorkUnit. The word may be empty but must be present.
func DecodeWorkUnit(data []byte) (WorkUnit, error) {
	obj, err := Normalize(data)
	if err != nil {
		return WorkUnit{}, err
	}

	var w wireUnit
	if err := json.Unmarshal(obj, &w); err != nil {
		return WorkUnit{}, core.NewMalformedPayloadError("work unit fields have the wrong type", err)
	}
	text, ok := w.text()
	if !ok {
		return WorkUnit{}, core.NewMalformedPayloadError("work unit has no word", nil)
	}

	origin := w.Frontend
	if origin == "" {
		origin = w.Origin
	}
	return WorkUnit{Text: text, Origin: origin}, nil
}

// DecodeReply parses a ReplyPayload and also returns the normalized JSON
// object it was decoded from.
func DecodeReply(data []byte) (ReplyPayload, []byte, error) {
	obj, err := Normalize(data)
	if err != nil {
		return ReplyPayload{}, nil, err
	}

	var w wireUnit
	if err := json.Unmarshal(obj, &w); err != nil {
		return ReplyPayload{}, nil, core.NewMalformedPayloadError("reply fields have the wrong type", err)
	}
	text, ok := w.text()
	if !ok {
		return ReplyPayload{}, nil, core.NewMalformedPayloadError("reply has no word", nil)
	}

	origin := w.Backend
	if origin == "" {
		origin = w.Origin
	}
	return ReplyPayload{Text: text, Origin: origin}, obj, nil
}

// Normalize returns the JSON object carried by data. A payload that is a JSON
// string holding an object (double encoded) is unwrapped once.
func Normalize(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, core.NewMalformedPayloadError("empty payload", nil)
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, core.NewMalformedPayloadError("payload is not valid JSON", err)
		}
		data = bytes.TrimSpace([]byte(inner))
	}

	if len(data) == 0 || data[0] != '{' {
		return nil, core.NewMalformedPayloadError("payload is not a JSON object", nil)
	}
	if !json.Valid(data) {
		return nil, core.NewMalformedPayloadError("payload is not valid JSON", nil)
	}
	return data, nil
}
