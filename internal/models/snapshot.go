package models

import "time"

// SnapshotMember is one present member inside a snapshot.
type SnapshotMember struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	// Allowed reports an explicit per-member allow override on the voice room.
	Allowed bool `json:"allowed"`
	// Kickable is false for the owner and for automated accounts.
	Kickable bool `json:"kickable"`
}

// Snapshot is the full-replace lobby state payload published to the
// per-owner sync topic. Duplicate delivery is safe: applying the same
// snapshot twice leaves client state unchanged.
type Snapshot struct {
	CommunityID   string           `json:"community_id"`
	CommunityName string           `json:"community_name,omitempty"`
	OwnerID       string           `json:"owner_id"`
	OwnerName     string           `json:"owner_name,omitempty"`
	RoomID        string           `json:"room_id"`
	RoomName      string           `json:"room_name"`
	Policy        Policy           `json:"policy"`
	UserLimit     int              `json:"user_limit"`
	Members       []SnapshotMember `json:"members"`
	// NextRenameAt is set while a rename sits in the throttle's deferred
	// slot: the time the pending rename will apply automatically.
	NextRenameAt *time.Time `json:"next_rename_at,omitempty"`
	// Gone marks the terminal snapshot sent when the lobby is torn down.
	Gone        bool      `json:"gone,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
