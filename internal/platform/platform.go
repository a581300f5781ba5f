// Package platform defines the contract with the chat platform: rooms,
// permission overrides, membership, messaging, and the real-time event
// streams the lobby engine consumes. The engine only ever talks to the
// Gateway interface; Client implements it against the platform's HTTP API.
package platform

import "context"

// PermissionSet is a bit set of platform permissions.
type PermissionSet uint64

const (
	PermViewRoom PermissionSet = 1 << iota
	PermConnect
	PermSpeak
)

// Has reports whether every permission in p is present in s.
func (s PermissionSet) Has(p PermissionSet) bool { return s&p == p }

// TargetType identifies what a permission override applies to.
type TargetType string

const (
	TargetEveryone TargetType = "everyone"
	TargetMember   TargetType = "member"
	TargetRole     TargetType = "role"
)

// OverwriteTarget is the entity a permission override applies to. The
// default entity ("everyone") has an empty ID.
type OverwriteTarget struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id,omitempty"`
}

// Everyone is the default-entity override target.
var Everyone = OverwriteTarget{Type: TargetEveryone}

// MemberTarget returns an override target for a single member.
func MemberTarget(id string) OverwriteTarget { return OverwriteTarget{Type: TargetMember, ID: id} }

// RoleTarget returns an override target for a role.
func RoleTarget(id string) OverwriteTarget { return OverwriteTarget{Type: TargetRole, ID: id} }

// Overwrite is a per-entity permission override on a room.
type Overwrite struct {
	Target OverwriteTarget `json:"target"`
	Allow  PermissionSet   `json:"allow"`
	Deny   PermissionSet   `json:"deny"`
}

// RoomKind distinguishes voice rooms from text rooms.
type RoomKind string

const (
	RoomVoice RoomKind = "voice"
	RoomText  RoomKind = "text"
)

// Room is the platform's view of a room.
type Room struct {
	ID          string   `json:"id"`
	CommunityID string   `json:"community_id"`
	ParentID    string   `json:"parent_id,omitempty"`
	Kind        RoomKind `json:"kind"`
	Name        string   `json:"name"`
	UserLimit   int      `json:"user_limit,omitempty"`
}

// CreateRoomRequest describes a room to create.
type CreateRoomRequest struct {
	Kind       RoomKind    `json:"kind"`
	Name       string      `json:"name"`
	ParentID   string      `json:"parent_id,omitempty"`
	UserLimit  int         `json:"user_limit,omitempty"`
	Overwrites []Overwrite `json:"overwrites,omitempty"`
}

// RoomPatch carries partial room updates. Nil fields are left untouched.
type RoomPatch struct {
	Name      *string `json:"name,omitempty"`
	UserLimit *int    `json:"user_limit,omitempty"`
}

// Community is the platform's display record for a community.
type Community struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a community member as seen in a room's presence list.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Bot         bool   `json:"bot"`
	// RoleRank is the member's highest role position; higher outranks lower.
	RoleRank int `json:"role_rank"`
}

// PresenceEvent reports a member's voice presence moving between rooms.
// Either room id may be empty (joined from / left to nowhere).
type PresenceEvent struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	FromRoomID  string `json:"from_room_id,omitempty"`
	ToRoomID    string `json:"to_room_id,omitempty"`
}

// Interaction is a control-surface action: a component press, select, or
// modal submission on a message posted by this service.
type Interaction struct {
	CommunityID string   `json:"community_id"`
	RoomID      string   `json:"room_id"`
	MessageID   string   `json:"message_id"`
	MemberID    string   `json:"member_id"`
	ComponentID string   `json:"component_id"`
	Values      []string `json:"values,omitempty"`
	// Token authorizes one ephemeral response or modal open for this
	// interaction.
	Token string `json:"token"`
}

// SelectOption is a single choice in a select component.
type SelectOption struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Select is a dropdown component on a control panel.
type Select struct {
	ID          string `json:"id"`
	Placeholder string `json:"placeholder,omitempty"`
	Multi       bool   `json:"multi,omitempty"`
	// EntityPicker asks the platform to populate options with its own
	// member/role picker instead of Options.
	EntityPicker bool           `json:"entity_picker,omitempty"`
	Options      []SelectOption `json:"options,omitempty"`
}

// Button is a clickable component on a control panel.
type Button struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ControlPanel describes the persistent interactive control surface posted
// into a lobby's text room.
type ControlPanel struct {
	Title   string   `json:"title"`
	Body    string   `json:"body,omitempty"`
	Selects []Select `json:"selects,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// ModalPrompt describes a single-input modal opened from an interaction.
type ModalPrompt struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Label string `json:"label"`
	// Prefill seeds the input field.
	Prefill string `json:"prefill,omitempty"`
}

// Gateway is the platform API surface the lobby engine depends on. All
// calls are synchronous and honor ctx cancellation; event streams deliver
// until ctx is done.
type Gateway interface {
	CreateRoom(ctx context.Context, communityID string, req CreateRoomRequest) (*Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	Room(ctx context.Context, roomID string) (*Room, error)
	UpdateRoom(ctx context.Context, roomID string, patch RoomPatch) error

	SetOverwrite(ctx context.Context, roomID string, ow Overwrite) error
	ClearOverwrite(ctx context.Context, roomID string, target OverwriteTarget) error
	Overwrites(ctx context.Context, roomID string) ([]Overwrite, error)

	Community(ctx context.Context, communityID string) (*Community, error)
	RoomMembers(ctx context.Context, roomID string) ([]Member, error)
	MoveMember(ctx context.Context, communityID, memberID, toRoomID string) error
	MuteMember(ctx context.Context, communityID, memberID string, muted bool) error
	DisconnectMember(ctx context.Context, communityID, memberID string) error

	PostMessage(ctx context.Context, roomID, body string) (messageID string, err error)
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	PostControl(ctx context.Context, roomID string, panel ControlPanel) (messageID string, err error)
	EditControl(ctx context.Context, roomID, messageID string, panel ControlPanel) error
	OpenModal(ctx context.Context, interactionToken string, modal ModalPrompt) error
	RespondEphemeral(ctx context.Context, interactionToken, body string) error

	// Notify sends a best-effort direct notification. Failures are for the
	// caller to swallow, not retry.
	Notify(ctx context.Context, memberID, title, body string) error

	PresenceEvents(ctx context.Context) (<-chan PresenceEvent, error)
	Interactions(ctx context.Context) (<-chan Interaction, error)
}
