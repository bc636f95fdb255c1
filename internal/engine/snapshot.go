package engine

import (
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/state"
)

// Snapshot is the engine state observable by the presentation layer.
// User is a private copy; mutating it has no effect on the engine.
type Snapshot struct {
	// Authenticated is true only after a successful profile fetch with
	// the stored token.
	Authenticated bool

	// User is the last wholesale profile snapshot, nil when logged out.
	User *model.User

	// IsSubscribed is the merged entitlement flag: backend record OR a
	// platform purchase that has been mirrored server-side. Recomputed by
	// reconciliation, never set directly.
	IsSubscribed bool
}

func newHolder(initial Snapshot) *state.Holder[Snapshot] {
	return state.NewHolder(initial)
}
