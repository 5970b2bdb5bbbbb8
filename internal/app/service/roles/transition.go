package roles

import "github.com/fatflowers/agentbilling/pkg/types"

type TransitionKind string

const (
	TransitionGrant       TransitionKind = "grant"
	TransitionUpgrade     TransitionKind = "upgrade"
	TransitionDowngrade   TransitionKind = "downgrade"
	TransitionNoChange    TransitionKind = "no_change"
	TransitionUnknownRank TransitionKind = "unknown_rank"
	TransitionRevert      TransitionKind = "revert"
	TransitionUnhandled   TransitionKind = "unhandled"
	TransitionCleanup     TransitionKind = "cleanup"
)

// Mutates reports whether applying the transition writes to user_roles.
func (k TransitionKind) Mutates() bool {
	switch k {
	case TransitionGrant, TransitionUpgrade, TransitionDowngrade, TransitionRevert, TransitionCleanup:
		return true
	}
	return false
}

// Input is what a created/updated subscription event tells us about a user.
type Input struct {
	Status types.SubscriptionStatus
	// Previous is the user's current role, nil if the user has no role history.
	Previous *types.Role
	Resolved types.Role
}

type Transition struct {
	Kind TransitionKind `json:"kind"`
	From *types.Role    `json:"from,omitempty"`
	To   types.Role     `json:"to"`
}

// Decide picks the role transition for a created/updated subscription event.
// It has no side effects.
func Decide(ranking types.Ranking, in Input) Transition {
	t := Transition{From: in.Previous}
	switch {
	case in.Status.Entitled():
		t.To = in.Resolved
		if in.Previous == nil || ranking.IsBase(*in.Previous) {
			t.Kind = TransitionGrant
			return t
		}
		prev, okPrev := ranking.Rank(*in.Previous)
		next, okNext := ranking.Rank(in.Resolved)
		switch {
		case !okPrev || !okNext:
			t.Kind = TransitionUnknownRank
		case next > prev:
			t.Kind = TransitionUpgrade
		case next < prev:
			t.Kind = TransitionDowngrade
		default:
			t.Kind = TransitionNoChange
		}
	case in.Status.Terminal():
		t.Kind = TransitionRevert
		t.To = ranking.Base()
	default:
		t.Kind = TransitionUnhandled
	}
	return t
}
