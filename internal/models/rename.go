package models

import (
	"time"

	"github.com/google/uuid"
)

// RenameEvent is one row of the append-only rename history. Rows are only
// ever inserted; the history feeds the "recent names" quick-pick.
type RenameEvent struct {
	ID          uuid.UUID `json:"id"`
	CommunityID string    `json:"community_id"`
	OwnerID     string    `json:"owner_id"`
	Fragment    string    `json:"fragment"`
	CreatedAt   time.Time `json:"created_at"`
}
