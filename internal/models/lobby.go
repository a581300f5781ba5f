package models

import (
	"errors"
	"time"
)

// ErrLobbyGone signals that the lobby row referenced by an operation no
// longer exists. Handlers treat it as an idempotent abort: the teardown
// already won the race, there is nothing left to do.
var ErrLobbyGone = errors.New("lobby no longer exists")

// ErrLobbyExists signals the owner-uniqueness invariant: a member may own at
// most one active lobby at a time.
var ErrLobbyExists = errors.New("member already owns a lobby")

// Lobby is one row in the lobbies table: an ephemeral voice room plus an
// optional mirrored text room, owned by exactly one member. The row is the
// single source of truth for "does this member currently own a lobby."
type Lobby struct {
	VoiceRoomID string `json:"voice_room_id"`
	// TextRoomID is empty when no mirror exists yet; it equals VoiceRoomID
	// when the community combines voice and text into one room.
	TextRoomID     string    `json:"text_room_id,omitempty"`
	PanelMessageID string    `json:"panel_message_id,omitempty"`
	CommunityID    string    `json:"community_id"`
	OwnerID        string    `json:"owner_id"`
	Policy         Policy    `json:"policy"`
	UserLimit      int       `json:"user_limit"`
	NameFragment   string    `json:"name_fragment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SeparateText reports whether the lobby has a standalone text mirror room,
// as opposed to a combined voice+text room or no mirror at all.
func (l *Lobby) SeparateText() bool {
	return l.TextRoomID != "" && l.TextRoomID != l.VoiceRoomID
}

// DeriveRoomName computes the platform-visible room name. The freeform
// fragment is never published verbatim as the room name; an empty fragment
// falls back to the owner's display name.
func DeriveRoomName(ownerDisplay, fragment string) string {
	if fragment == "" {
		return ownerDisplay + "'s Lobby"
	}
	return fragment
}
