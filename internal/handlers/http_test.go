package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcord/lobbyd/internal/auth"
	"github.com/voxcord/lobbyd/internal/models"
)

type fakeRedeemer struct {
	id  auth.Identity
	err error
}

func (f *fakeRedeemer) Redeem(ctx context.Context, code string) (auth.Identity, error) {
	return f.id, f.err
}

type fakeOnboarder struct {
	mapping *models.CategoryMapping
	calls   int
}

func (f *fakeOnboarder) EnsureMapping(ctx context.Context, communityID, parentRoomID string, separateText bool) (*models.CategoryMapping, error) {
	f.calls++
	return f.mapping, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestClaimPairingIssuesToken(t *testing.T) {
	require.NoError(t, auth.Init(0))
	redeemer := &fakeRedeemer{id: auth.Identity{CommunityID: "comm-1", MemberID: "alice"}}

	req := httptest.NewRequest("POST", "/pair/claim", bytes.NewBufferString(`{"code":"ABCD2345"}`))
	w := httptest.NewRecorder()
	ClaimPairingHandler(testLogger(), redeemer).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp claimPairingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "comm-1", resp.CommunityID)
	assert.Equal(t, "alice", resp.MemberID)

	id, err := auth.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.MemberID)
}

func TestClaimPairingRejectsBadCode(t *testing.T) {
	require.NoError(t, auth.Init(0))
	redeemer := &fakeRedeemer{err: auth.ErrCodeInvalid}

	req := httptest.NewRequest("POST", "/pair/claim", bytes.NewBufferString(`{"code":"WRONG"}`))
	w := httptest.NewRecorder()
	ClaimPairingHandler(testLogger(), redeemer).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimPairingRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/pair/claim", bytes.NewBufferString(`{`))
	w := httptest.NewRecorder()
	ClaimPairingHandler(testLogger(), &fakeRedeemer{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsureMappingRequiresAdminToken(t *testing.T) {
	onboarder := &fakeOnboarder{mapping: &models.CategoryMapping{CommunityID: "comm-1"}}
	h := EnsureMappingHandler(testLogger(), onboarder, "sekrit")

	body := `{"community_id":"comm-1","parent_room_id":"cat-1"}`

	req := httptest.NewRequest("POST", "/admin/mappings", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, onboarder.calls)

	req = httptest.NewRequest("POST", "/admin/mappings", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, onboarder.calls)
}

func TestEnsureMappingDisabledWithoutToken(t *testing.T) {
	h := EnsureMappingHandler(testLogger(), &fakeOnboarder{}, "")

	req := httptest.NewRequest("POST", "/admin/mappings", bytes.NewBufferString(`{"community_id":"comm-1"}`))
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/sync/ws", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(req))

	req = httptest.NewRequest("GET", "/sync/ws?token=query456", nil)
	assert.Equal(t, "query456", bearerToken(req))

	req = httptest.NewRequest("GET", "/sync/ws", nil)
	assert.Empty(t, bearerToken(req))
}
