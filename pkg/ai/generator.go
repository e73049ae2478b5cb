package ai

import "context"

// Turn is one prior exchange entry passed to the model as history.
// Role is "user" or "model".
type Turn struct {
	Role string
	Text string
}

// ChatGenerator generates a response to a message given prior turn history.
type ChatGenerator interface {
	GenerateChat(ctx context.Context, history []Turn, message string) (string, error)
}
