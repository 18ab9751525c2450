// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package relay

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Upstream event and message types understood by the relay.
const (
	EventSessionUpdate          = "session.update"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
	EventResponseDone           = "response.done"
)

// Downstream marker frame types.
const (
	FrameConnected = "connected"
	FrameError     = "error"
	FrameClosed    = "closed"
)

type connectedFrame struct {
	Type string `json:"type"`
	Via  string `json:"via,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type closedFrame struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreate struct {
	Type string `json:"type"`
}

// setupMessages returns the upstream messages sent right after the handshake.
// Configuration precedes content, content precedes the generate request.
func setupMessages(instructions, prompt string) []any {
	return []any{
		sessionUpdate{
			Type: EventSessionUpdate,
			Session: sessionConfig{
				Modalities:   []string{"text"},
				Instructions: instructions,
			},
		},
		conversationItemCreate{
			Type: EventConversationItemCreate,
			Item: conversationItem{
				Type: "message",
				Role: "user",
				Content: []contentPart{
					{Type: "input_text", Text: prompt},
				},
			},
		},
		responseCreate{Type: EventResponseCreate},
	}
}

// decodeEvent validates an upstream frame and returns it compacted onto a
// single line, together with its type discriminator.
func decodeEvent(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, "", err
	}
	raw := buf.Bytes()
	return raw, gjson.GetBytes(raw, "type").String(), nil
}
