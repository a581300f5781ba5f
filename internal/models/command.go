package models

import (
	"context"
	"fmt"
)

// CommandKind discriminates the tagged Command variant.
type CommandKind string

const (
	CommandSetPolicy    CommandKind = "set_policy"
	CommandSetLimit     CommandKind = "set_limit"
	CommandRename       CommandKind = "rename"
	CommandAddMember    CommandKind = "add_member"
	CommandRemoveMember CommandKind = "remove_member"
	// CommandRefresh re-publishes the current snapshot without mutating any
	// state. Reconnecting clients send it to resynchronize.
	CommandRefresh CommandKind = "refresh"
)

// Command is the single capability-typed surface through which both the
// dashboard and remote clients drive the lobby engine. Exactly one of the
// value fields is meaningful, selected by Kind.
type Command struct {
	Kind     CommandKind `json:"kind"`
	Policy   Policy      `json:"policy,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Fragment string      `json:"fragment,omitempty"`
	MemberID string      `json:"member_id,omitempty"`
	RoleID   string      `json:"role_id,omitempty"`
}

// Validate rejects malformed commands before they reach the engine.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandSetPolicy:
		if !c.Policy.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Policy)
		}
	case CommandSetLimit:
		if c.Limit < 0 || c.Limit > 99 {
			return fmt.Errorf("user limit %d out of range", c.Limit)
		}
	case CommandRename:
		if c.Fragment == "" {
			return fmt.Errorf("rename requires a name fragment")
		}
	case CommandAddMember, CommandRemoveMember:
		if c.MemberID == "" && c.RoleID == "" {
			return fmt.Errorf("%s requires a member or role reference", c.Kind)
		}
	case CommandRefresh:
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// CommandSink is implemented by the lifecycle manager. ownerID identifies
// the acting lobby owner; implementations re-read the authoritative lobby
// row and return ErrLobbyGone when it has vanished.
type CommandSink interface {
	Apply(ctx context.Context, communityID, ownerID string, cmd Command) error
}
