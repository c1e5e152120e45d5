// ABOUTME: Wire payload of one stream record and its zero-reflection decoder
// ABOUTME: Hand-written against easyjson's jlexer; unknown fields are skipped

package stream

import (
	"encoding/json"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
)

// payload is the JSON body of a data record. Content may arrive either as
// delta.content or as a top-level content field.
type payload struct {
	Delta          payloadDelta    `json:"delta"`
	Content        string          `json:"content"`
	Status         string          `json:"status"`
	ConversationID string          `json:"conversationId"`
	ToolCalls      json.RawMessage `json:"toolCalls"`
	// Error is either a string or an object with a message field.
	Error string `json:"error"`
}

type payloadDelta struct {
	Content string `json:"content"`
}

// text returns the content carried by the payload.
func (p *payload) text() string {
	if p.Delta.Content != "" {
		return p.Delta.Content
	}
	return p.Content
}

func decodePayload(data []byte) (payload, error) {
	var p payload
	err := easyjson.Unmarshal(data, &p)
	return p, err
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (p *payload) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "delta":
			p.Delta.unmarshal(in)
		case "content":
			p.Content = in.String()
		case "status":
			p.Status = in.String()
		case "conversationId":
			p.ConversationID = in.String()
		case "toolCalls":
			if raw := in.Raw(); len(raw) > 0 {
				p.ToolCalls = append(json.RawMessage(nil), raw...)
			}
		case "error":
			p.Error = decodeErrorField(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *payload) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	p.UnmarshalEasyJSON(&l)
	return l.Error()
}

func (d *payloadDelta) unmarshal(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "content":
			d.Content = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// decodeErrorField accepts "error": "msg" and "error": {"message": "msg"}.
func decodeErrorField(in *jlexer.Lexer) string {
	if !in.IsDelim('{') {
		return in.String()
	}
	var msg string
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "message":
			msg = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if msg == "" {
		msg = "unknown provider error"
	}
	return msg
}
