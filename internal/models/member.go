package models

import "time"

// OwningMember is the community-scoped identity record backing lobby
// ownership and rename history. Rows are created lazily on first interaction
// and never deleted while any dependent row exists.
type OwningMember struct {
	CommunityID string    `json:"community_id"`
	PlatformID  string    `json:"platform_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
