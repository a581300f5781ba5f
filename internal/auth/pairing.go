package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/argon2"
)

// ErrCodeInvalid covers unknown, expired and already-redeemed pairing codes;
// callers get no hint which one it was.
var ErrCodeInvalid = errors.New("pairing code is invalid or expired")

// codeAlphabet avoids characters that read ambiguously on a phone screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

// pairingSalt makes code hashes deterministic so they can serve as lookup
// keys. Codes are short-lived and single-use, so a per-code salt buys
// nothing here.
var pairingSalt = []byte("lobbyd/pairing/v1")

// Pairings mints one-time codes that link a mobile device to a lobby owner.
// Only the argon2id hash of a code ever reaches redis.
type Pairings struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPairings builds a code registry with the given code lifetime.
func NewPairings(rdb *redis.Client, ttl time.Duration) *Pairings {
	return &Pairings{rdb: rdb, ttl: ttl}
}

// Begin mints a fresh code for the member and parks it in redis until
// redeemed or expired.
func (p *Pairings) Begin(ctx context.Context, communityID, memberID string) (string, time.Duration, error) {
	code, err := generateCode()
	if err != nil {
		return "", 0, fmt.Errorf("generate pairing code: %w", err)
	}

	err = p.rdb.Set(ctx, pairingKey(code), communityID+"/"+memberID, p.ttl).Err()
	if err != nil {
		return "", 0, fmt.Errorf("store pairing code: %w", err)
	}
	return code, p.ttl, nil
}

// Redeem consumes a code and returns the identity it was minted for. A code
// redeems at most once; GETDEL makes the race between two redeemers safe.
func (p *Pairings) Redeem(ctx context.Context, code string) (Identity, error) {
	val, err := p.rdb.GetDel(ctx, pairingKey(strings.ToUpper(strings.TrimSpace(code)))).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrCodeInvalid
	}
	if err != nil {
		return Identity{}, fmt.Errorf("redeem pairing code: %w", err)
	}

	communityID, memberID, ok := strings.Cut(val, "/")
	if !ok {
		return Identity{}, ErrCodeInvalid
	}
	return Identity{CommunityID: communityID, MemberID: memberID}, nil
}

func pairingKey(code string) string {
	hash := argon2.IDKey([]byte(code), pairingSalt, 3, 32*1024, 2, 32)
	return "pairing:" + base64.RawStdEncoding.EncodeToString(hash)
}

func generateCode() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range raw {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
