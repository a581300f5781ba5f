package models

import "errors"

// ErrNoMapping is returned when a community has no category mapping yet.
var ErrNoMapping = errors.New("no category mapping for community")

// CategoryMapping is the per-community record of the three "create" rooms
// (one per starting policy) and the optional parent room new lobbies are
// filed under. Mappings are lazily created and healed: when a referenced
// create-room no longer exists on the platform it is recreated and the row
// updated.
type CategoryMapping struct {
	CommunityID  string `json:"community_id"`
	PublicRoomID string `json:"public_room_id"`
	MutedRoomID  string `json:"muted_room_id"`
	LockedRoomID string `json:"locked_room_id"`
	ParentRoomID string `json:"parent_room_id,omitempty"`
	// SeparateText controls whether new lobbies get a standalone text
	// mirror room or reuse the voice room for text.
	SeparateText bool `json:"separate_text"`
}

// PolicyForCreateRoom returns the starting policy for a create-room id, and
// whether the id is one of the mapping's create-rooms at all.
func (m *CategoryMapping) PolicyForCreateRoom(roomID string) (Policy, bool) {
	switch roomID {
	case m.PublicRoomID:
		return PolicyPublic, true
	case m.MutedRoomID:
		return PolicyMuted, true
	case m.LockedRoomID:
		return PolicyLocked, true
	}
	return "", false
}
