// Package signing turns an unsigned transaction into a signature, asking the
// user for consent first when required.
package signing

import (
	"encoding/json"
	"fmt"

	"github.com/ggonzalez94/wallet-cli/internal/consent"
	"github.com/ggonzalez94/wallet-cli/internal/network"
)

// Message is one human-readable operation of a transaction.
type Message struct {
	Type string         `json:"type"`
	Code string         `json:"code"`
	Data map[string]any `json:"data"`
}

// UnsignedTransaction is a transaction built by a chain client and not yet signed.
type UnsignedTransaction interface {
	// Messages returns a presentation copy; it must not modify the transaction.
	Messages() []Message
	// SigningDigest returns the 32-byte digest the key signs.
	SigningDigest() ([]byte, error)
	Raw() (json.RawMessage, error)
}

type Payload struct {
	Messages    []Message       `json:"messages"`
	Transaction json.RawMessage `json:"transaction"`
}

// Request is what the consent UI is shown. It holds no key material and is
// not modified after creation.
type Request struct {
	Payload        Payload           `json:"payload"`
	Participants   []network.Account `json:"participants"`
	Origin         string            `json:"origin"`
	Type           string            `json:"type"`
	ID             int64             `json:"id"`
	RequiredFields map[string]any    `json:"requiredFields"`
	Blockchain     string            `json:"blockchain"`
	Network        network.Identity  `json:"network"`
}

func (r *Request) prompt() consent.Prompt {
	return consent.Prompt{
		Payload:        r,
		Origin:         r.Origin,
		Blockchain:     r.Blockchain,
		RequiredFields: r.RequiredFields,
		Type:           r.Type,
		ID:             r.ID,
	}
}

type State string

const (
	StateCreated         State = "created"
	StatePendingApproval State = "pending_approval"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"
	StateExpired         State = "expired"
	StateSigned          State = "signed"
	StateSigningFailed   State = "signing_failed"
)

var transitions = map[State][]State{
	StateCreated:         {StatePendingApproval, StateApproved},
	StatePendingApproval: {StateApproved, StateRejected, StateExpired},
	StateApproved:        {StateSigned, StateSigningFailed},
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// lifecycle tracks the state of one request.
type lifecycle struct {
	state State
}

func (l *lifecycle) advance(to State) error {
	if !l.state.CanTransition(to) {
		return fmt.Errorf("illegal signing request transition %s -> %s", l.state, to)
	}
	l.state = to
	return nil
}
