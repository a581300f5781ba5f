// Package handlers exposes the service's HTTP surface: the WebSocket sync
// bridge for paired clients, pairing-code redemption, and the mapping admin
// endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/auth"
	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/syncfan"
)

// SyncWSHandler bridges one paired client onto the owner's sync topics:
// snapshots flow out to the socket, commands flow in and are published to the
// command topic, where the fan-out relays them into the engine.
func SyncWSHandler(logger *logrus.Logger, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby-sync"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby-sync" {
			c.Close(BadSubprotocolError, "client must speak the lobby-sync subprotocol")
			return
		}

		id, err := auth.VerifyToken(bearerToken(r))
		if err != nil {
			logger.Warnf("sync auth failed from %s: %v", remoteAddr, err)
			c.Close(InvalidTokenError, "authentication failed")
			return
		}

		log := logger.WithFields(logrus.Fields{
			"community": id.CommunityID,
			"member":    id.MemberID,
			"remote":    remoteAddr,
		})
		log.Info("sync client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		pubsub := rdb.Subscribe(ctx, syncfan.SyncTopic(id.CommunityID, id.MemberID))
		defer pubsub.Close()

		go writePump(ctx, cancel, c, pubsub, log)
		readPump(ctx, c, rdb, id, log)

		log.Info("sync client disconnected")
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// writePump forwards published snapshots to the socket and pings to keep
// intermediaries from dropping the connection.
func writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, pubsub *redis.PubSub, log *logrus.Entry) {
	defer cancel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, []byte(msg.Payload))
			wcancel()
			if err != nil {
				log.Warnf("sync write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, pcancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			pcancel()
			if err != nil {
				log.Warnf("sync ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}

// readPump decodes client commands and republishes them on the owner's
// command topic. Commands are only shape-checked here; authorization and the
// authoritative re-read happen in the engine.
func readPump(ctx context.Context, c *websocket.Conn, rdb *redis.Client, id auth.Identity, log *logrus.Entry) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Warnf("sync read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var cmd models.Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			log.Warnf("invalid sync command json: %v", err)
			writeError(ctx, c, "invalid JSON")
			continue
		}
		if err := cmd.Validate(); err != nil {
			writeError(ctx, c, err.Error())
			continue
		}

		if err := rdb.Publish(ctx, syncfan.CommandTopic(id.CommunityID, id.MemberID), msg).Err(); err != nil {
			log.Warnf("relay sync command: %v", err)
			writeError(ctx, c, "command could not be delivered")
		}
	}
}

func writeError(ctx context.Context, c *websocket.Conn, reason string) {
	payload, _ := json.Marshal(map[string]string{"type": "error", "error": reason})
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = c.Write(writeCtx, websocket.MessageText, payload)
}
