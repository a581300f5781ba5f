package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/auth"
	"github.com/voxcord/lobbyd/internal/models"
)

// Redeemer exchanges a one-time pairing code for the identity it was minted
// for.
type Redeemer interface {
	Redeem(ctx context.Context, code string) (auth.Identity, error)
}

// Onboarder provisions a community's create-room mapping.
type Onboarder interface {
	EnsureMapping(ctx context.Context, communityID, parentRoomID string, separateText bool) (*models.CategoryMapping, error)
}

type claimPairingRequest struct {
	Code string `json:"code"`
}

type claimPairingResponse struct {
	Token       string `json:"token"`
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
}

// ClaimPairingHandler exchanges a pairing code shown in the control surface
// for a session token the mobile client can hold long-term.
func ClaimPairingHandler(logger *logrus.Logger, pairings Redeemer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req claimPairingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		id, err := pairings.Redeem(r.Context(), req.Code)
		if err != nil {
			if errors.Is(err, auth.ErrCodeInvalid) {
				http.Error(w, "invalid or expired code", http.StatusUnauthorized)
				return
			}
			logger.Warnf("redeem pairing code: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		token, err := auth.CreateToken(id)
		if err != nil {
			logger.Warnf("create session token: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, claimPairingResponse{
			Token:       token,
			CommunityID: id.CommunityID,
			MemberID:    id.MemberID,
		})
	}
}

type ensureMappingRequest struct {
	CommunityID  string `json:"community_id"`
	ParentRoomID string `json:"parent_room_id"`
	SeparateText bool   `json:"separate_text"`
}

// EnsureMappingHandler onboards a community: it creates (or heals) the three
// designated create-rooms and persists the mapping. Guarded by the admin
// token, not member sessions.
func EnsureMappingHandler(logger *logrus.Logger, onboarder Onboarder, adminToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if adminToken == "" || bearerToken(r) != adminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req ensureMappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CommunityID == "" {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		mapping, err := onboarder.EnsureMapping(r.Context(), req.CommunityID, req.ParentRoomID, req.SeparateText)
		if err != nil {
			logger.Warnf("ensure mapping for %s: %v", req.CommunityID, err)
			http.Error(w, "mapping provisioning failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, mapping)
	}
}

// HealthHandler reports liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
