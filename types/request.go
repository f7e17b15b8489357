package types

import "fmt"

// Request field bounds for the chat-completions schema. The limits mirror
// the upstream provider's documented ranges; anything outside them is
// rejected before the pipeline starts.
const (
	MaxModelLen     = 200
	MaxMessages     = 200
	MaxMaxTokens    = 8192
	MaxChoices      = 10
	MaxUserFieldLen = 200
)

// ResponseFormat is the optional response_format field of the request.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionsRequest is the OpenAI-compatible chat completions request
// schema (subset plus common fields). The schema is closed: handlers decode
// it with DisallowUnknownFields so unexpected structure never reaches the
// guardrails unscanned.
type ChatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	Stream *bool `json:"stream,omitempty"`
	N      *int  `json:"n,omitempty"`

	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	User *string `json:"user,omitempty"`
}

// Validate checks all bounded fields and returns a *Error with code
// validation_error naming the first offending field.
func (r *ChatCompletionsRequest) Validate() error {
	if r.Model == "" || len(r.Model) > MaxModelLen {
		return invalidField("model", fmt.Sprintf("model must be 1-%d characters", MaxModelLen))
	}
	if len(r.Messages) == 0 || len(r.Messages) > MaxMessages {
		return invalidField("messages", fmt.Sprintf("messages must contain 1-%d entries", MaxMessages))
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return invalidField(fmt.Sprintf("messages[%d].role", i), "invalid role")
		}
		if m.Content == "" && len(m.Blocks) == 0 {
			return invalidField(fmt.Sprintf("messages[%d].content", i), "content must be non-empty")
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return invalidField("temperature", "temperature must be between 0 and 2")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return invalidField("top_p", "top_p must be between 0 and 1")
	}
	if r.MaxTokens != nil && (*r.MaxTokens < 1 || *r.MaxTokens > MaxMaxTokens) {
		return invalidField("max_tokens", fmt.Sprintf("max_tokens must be between 1 and %d", MaxMaxTokens))
	}
	if r.N != nil && (*r.N < 1 || *r.N > MaxChoices) {
		return invalidField("n", fmt.Sprintf("n must be between 1 and %d", MaxChoices))
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2 || *r.PresencePenalty > 2) {
		return invalidField("presence_penalty", "presence_penalty must be between -2 and 2")
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2 || *r.FrequencyPenalty > 2) {
		return invalidField("frequency_penalty", "frequency_penalty must be between -2 and 2")
	}
	if r.ResponseFormat != nil && r.ResponseFormat.Type != "text" && r.ResponseFormat.Type != "json_object" {
		return invalidField("response_format", `response_format.type must be "text" or "json_object"`)
	}
	if r.User != nil && len(*r.User) > MaxUserFieldLen {
		return invalidField("user", fmt.Sprintf("user must be at most %d characters", MaxUserFieldLen))
	}
	return nil
}

func invalidField(param, message string) *Error {
	return NewError(CodeValidationError, message).WithParam(param).WithHTTPStatus(400)
}

// Clone returns a deep copy of the request whose messages can be rewritten
// without mutating the receiver. Scalar option fields are copied by pointer
// value; the gateway never writes through them.
func (r *ChatCompletionsRequest) Clone() *ChatCompletionsRequest {
	out := *r
	out.Messages = make([]ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		out.Messages[i] = m.Clone()
	}
	if r.ResponseFormat != nil {
		rf := *r.ResponseFormat
		out.ResponseFormat = &rf
	}
	return &out
}
