package models

import (
	"errors"
	"fmt"
)

// Policy is a lobby's access policy. It decides what the default entity may
// do in the lobby's rooms; explicit per-member allows always win over it.
type Policy string

const (
	// PolicyPublic lets anyone join and speak.
	PolicyPublic Policy = "public"
	// PolicyMuted lets anyone join and listen; speaking needs an explicit
	// allow.
	PolicyMuted Policy = "muted"
	// PolicyLocked requires an explicit allow to join at all.
	PolicyLocked Policy = "locked"
)

// ErrUnknownPolicy rejects a policy value outside the three known states.
var ErrUnknownPolicy = errors.New("unknown access policy")

// ParsePolicy validates a wire-format policy string.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// Valid reports whether p is one of the three known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyPublic, PolicyMuted, PolicyLocked:
		return true
	}
	return false
}
