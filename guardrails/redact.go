package guardrails

import (
	"context"
	"strings"

	"github.com/aegisgate/aegisgate/types"
)

// NormalizeText joins message text fragments into a single blob for
// injection scanning, skipping empty and blank fragments.
func NormalizeText(fragments []string) string {
	kept := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, "\n")
}

// ExtractMessageTexts collects every textual field reachable from the
// request's messages in traversal order: plain string contents, then the
// "text" field of typed text blocks. Non-text blocks are ignored.
func ExtractMessageTexts(req *types.ChatCompletionsRequest) []string {
	var texts []string
	for _, m := range req.Messages {
		if !m.HasBlocks() {
			texts = append(texts, m.Content)
			continue
		}
		for _, b := range m.Blocks {
			if b.Type() != "text" {
				continue
			}
			if t, ok := b.Text(); ok {
				texts = append(texts, t)
			}
		}
	}
	return texts
}

// RedactRequest produces a structurally identical copy of the request with
// every textual content field passed through the guardrail engine. The
// caller's value is never mutated; non-text blocks are copied verbatim and
// never inspected. No field outside messages[*].content is altered.
func RedactRequest(ctx context.Context, engine *Engine, req *types.ChatCompletionsRequest) *types.ChatCompletionsRequest {
	out := req.Clone()

	for i := range out.Messages {
		msg := &out.Messages[i]
		if !msg.HasBlocks() {
			msg.Content = engine.Run(ctx, msg.Content).RedactedText
			continue
		}
		for j, b := range msg.Blocks {
			if b.Type() != "text" {
				continue
			}
			if t, ok := b.Text(); ok {
				msg.Blocks[j]["text"] = engine.Run(ctx, t).RedactedText
			}
		}
	}
	return out
}
