// Package types provides the wire types shared across the gateway.
// This package has ZERO dependencies on other aegisgate packages to avoid
// circular imports. All other packages should import types from here.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the accepted values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ContentBlock is a single entry of a multimodal content list. Blocks of
// type "text" carry the text in the "text" key; all other block types are
// opaque to the gateway and forwarded untouched.
type ContentBlock map[string]any

// Type returns the block's "type" field, or "" if absent.
func (b ContentBlock) Type() string {
	t, _ := b["type"].(string)
	return t
}

// Text returns the "text" field of a text block.
func (b ContentBlock) Text() (string, bool) {
	s, ok := b["text"].(string)
	return s, ok
}

// Clone returns a shallow copy of the block. Values are shared; the gateway
// only ever rewrites the top-level "text" key, so nested values stay intact.
func (b ContentBlock) Clone() ContentBlock {
	out := make(ContentBlock, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ChatMessage represents a single chat message in OpenAI-compatible format.
// Content on the wire is either a plain string or an ordered list of content
// blocks; exactly one of Content / Blocks is populated after decoding.
type ChatMessage struct {
	Role    Role
	Content string
	Blocks  []ContentBlock
}

// HasBlocks reports whether the message carries block-list content.
func (m ChatMessage) HasBlocks() bool {
	return m.Blocks != nil
}

// Clone returns a copy of the message whose block list can be rewritten
// without mutating the receiver.
func (m ChatMessage) Clone() ChatMessage {
	out := ChatMessage{Role: m.Role, Content: m.Content}
	if m.Blocks != nil {
		out.Blocks = make([]ContentBlock, len(m.Blocks))
		for i, b := range m.Blocks {
			out.Blocks[i] = b.Clone()
		}
	}
	return out
}

// chatMessageWire mirrors the wire shape for strict decoding.
type chatMessageWire struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes a message, rejecting unknown fields. The schema is
// closed so an attacker cannot smuggle content past the guardrails in
// unexpected structure.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var wire chatMessageWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return err
	}

	if !wire.Role.Valid() {
		return fmt.Errorf("message role must be one of system, user, assistant, tool")
	}

	raw := bytes.TrimSpace(wire.Content)
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("message content is required")
	}

	m.Role = wire.Role
	m.Content = ""
	m.Blocks = nil

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			return fmt.Errorf("message content must be non-empty")
		}
		m.Content = s
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return err
		}
		if len(blocks) == 0 {
			return fmt.Errorf("message content must be non-empty")
		}
		for i, b := range blocks {
			if b.Type() == "" {
				return fmt.Errorf("content block %d is missing a type", i)
			}
		}
		m.Blocks = blocks
	default:
		return fmt.Errorf("message content must be a string or a list of content blocks")
	}
	return nil
}

// MarshalJSON encodes the message back into its original wire shape.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var content any
	if m.Blocks != nil {
		content = m.Blocks
	} else {
		content = m.Content
	}
	return json.Marshal(struct {
		Role    Role `json:"role"`
		Content any  `json:"content"`
	}{Role: m.Role, Content: content})
}
