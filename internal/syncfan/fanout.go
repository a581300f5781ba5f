// Package syncfan is the publish/subscribe layer between the lobby engine
// and remote (non-platform) clients: the paired mobile app and the
// companion website. Snapshots go out on a per-owner topic; remote commands
// come back on a sibling topic and re-enter the engine symmetrically.
package syncfan

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

// SyncTopic is the outbound snapshot channel for one owner.
func SyncTopic(communityID, ownerID string) string {
	return "lobby.sync." + communityID + "." + ownerID
}

// CommandTopic is the inbound remote-command channel for one owner.
func CommandTopic(communityID, ownerID string) string {
	return "lobby.cmd." + communityID + "." + ownerID
}

// Fanout relays snapshots out and commands in over redis pub/sub.
// Subscriptions are keyed per owner and idempotently creatable.
type Fanout struct {
	Log  *logrus.Logger
	RDB  *redis.Client
	GW   platform.Gateway
	Sink models.CommandSink

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

// New builds a Fanout. Sink is assigned by the caller before Subscribe is
// first used.
func New(rdb *redis.Client, gw platform.Gateway, log *logrus.Logger) *Fanout {
	return &Fanout{
		Log:  log,
		RDB:  rdb,
		GW:   gw,
		subs: make(map[string]context.CancelFunc),
	}
}

// Publish builds and publishes the owner's current snapshot. The payload is
// a full replace, so at-least-once delivery and duplicates are harmless.
func (f *Fanout) Publish(ctx context.Context, lob *models.Lobby, nextRenameAt *time.Time) error {
	snap, err := BuildSnapshot(ctx, f.GW, lob, nextRenameAt)
	if err != nil {
		return err
	}
	return f.publishSnapshot(ctx, snap)
}

// PublishGone tells an owner's clients their lobby no longer exists.
// Best effort: teardown proceeds regardless.
func (f *Fanout) PublishGone(ctx context.Context, communityID, ownerID string) {
	snap := &models.Snapshot{
		CommunityID: communityID,
		OwnerID:     ownerID,
		Gone:        true,
		GeneratedAt: time.Now().UTC(),
	}
	if err := f.publishSnapshot(ctx, snap); err != nil {
		f.Log.WithField("owner", ownerID).Warnf("publish gone: %v", err)
	}
}

func (f *Fanout) publishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return f.RDB.Publish(ctx, SyncTopic(snap.CommunityID, snap.OwnerID), data).Err()
}

// Subscribe starts relaying the owner's inbound commands into the engine.
// Re-subscribing a live owner is a no-op.
func (f *Fanout) Subscribe(ctx context.Context, communityID, ownerID string) {
	key := communityID + "/" + ownerID

	f.mu.Lock()
	if _, ok := f.subs[key]; ok {
		f.mu.Unlock()
		return
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.subs[key] = cancel
	f.mu.Unlock()

	pubsub := f.RDB.Subscribe(subCtx, CommandTopic(communityID, ownerID))
	go f.commandPump(subCtx, pubsub, communityID, ownerID)

	f.Log.WithFields(logrus.Fields{"community": communityID, "owner": ownerID}).
		Debug("sync subscription registered")
}

// Unsubscribe stops the owner's command relay. Safe to call for an owner
// who was never subscribed.
func (f *Fanout) Unsubscribe(communityID, ownerID string) {
	key := communityID + "/" + ownerID

	f.mu.Lock()
	cancel, ok := f.subs[key]
	if ok {
		delete(f.subs, key)
	}
	f.mu.Unlock()

	if ok {
		cancel()
	}
}

// commandPump decodes inbound commands and applies them through the sink.
// A vanished lobby mid-stream tears the subscription down defensively
// instead of erroring forever.
func (f *Fanout) commandPump(ctx context.Context, pubsub *redis.PubSub, communityID, ownerID string) {
	defer pubsub.Close()
	log := f.Log.WithFields(logrus.Fields{"community": communityID, "owner": ownerID})

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cmd models.Command
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				log.Warnf("bad remote command: %v", err)
				continue
			}

			applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			err := f.Sink.Apply(applyCtx, communityID, ownerID, cmd)
			cancel()
			if errors.Is(err, models.ErrLobbyGone) {
				log.Info("lobby gone, dropping sync subscription")
				f.Unsubscribe(communityID, ownerID)
				return
			}
			if err != nil {
				log.Warnf("remote command %s failed: %v", cmd.Kind, err)
			}
		}
	}
}
