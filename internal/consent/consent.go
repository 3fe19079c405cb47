// Package consent carries signing prompts to the user and their answers back.
package consent

import "context"

// RequestTypeSignature is the prompt type for transaction signatures.
const RequestTypeSignature = "request-signature"

// Prompt is what the consent UI receives for one signing request.
type Prompt struct {
	Payload        any            `json:"payload"`
	Origin         string         `json:"origin"`
	Blockchain     string         `json:"blockchain"`
	RequiredFields map[string]any `json:"requiredFields"`
	Type           string         `json:"type"`
	ID             int64          `json:"id"`
}

// Result is the user's answer. Extra carries fields the UI attached.
type Result struct {
	Accepted bool           `json:"accepted"`
	Extra    map[string]any `json:"-"`
}

// Channel delivers a prompt and waits for its answer. A nil Result with a nil
// error means the channel closed without an answer.
type Channel interface {
	Request(ctx context.Context, p Prompt) (*Result, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, p Prompt) (*Result, error)

func (f ChannelFunc) Request(ctx context.Context, p Prompt) (*Result, error) {
	return f(ctx, p)
}

// AutoApprove accepts every prompt.
var AutoApprove = ChannelFunc(func(context.Context, Prompt) (*Result, error) {
	return &Result{Accepted: true}, nil
})
