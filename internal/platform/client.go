package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the platform reports that a room, member, or
// message no longer exists. Callers treat it as "state is stale" and re-read
// rather than retry.
var ErrNotFound = errors.New("platform: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Client implements Gateway against the platform's HTTP API, with event
// streams delivered over a websocket.
type Client struct {
	baseURL string
	wsURL   string
	token   string
	http    *http.Client
	log     *logrus.Logger
}

// NewClient builds a Client. wsURL may be empty when only the REST surface
// is needed (e.g. one-shot admin tooling).
func NewClient(baseURL, wsURL, token string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   wsURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) CreateRoom(ctx context.Context, communityID string, req CreateRoomRequest) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodPost, "/communities/"+communityID+"/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+roomID, nil, nil)
}

func (c *Client) Room(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, patch RoomPatch) error {
	return c.do(ctx, http.MethodPatch, "/rooms/"+roomID, patch, nil)
}

func (c *Client) SetOverwrite(ctx context.Context, roomID string, ow Overwrite) error {
	return c.do(ctx, http.MethodPut, "/rooms/"+roomID+"/overwrites", ow, nil)
}

func (c *Client) ClearOverwrite(ctx context.Context, roomID string, target OverwriteTarget) error {
	q := url.Values{"type": {string(target.Type)}, "id": {target.ID}}
	return c.do(ctx, http.MethodDelete, "/rooms/"+roomID+"/overwrites?"+q.Encode(), nil, nil)
}

func (c *Client) Overwrites(ctx context.Context, roomID string) ([]Overwrite, error) {
	var ows []Overwrite
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID+"/overwrites", nil, &ows); err != nil {
		return nil, err
	}
	return ows, nil
}

func (c *Client) Community(ctx context.Context, communityID string) (*Community, error) {
	var cm Community
	if err := c.do(ctx, http.MethodGet, "/communities/"+communityID, nil, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]Member, error) {
	var members []Member
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID+"/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) MoveMember(ctx context.Context, communityID, memberID, toRoomID string) error {
	body := map[string]string{"room_id": toRoomID}
	return c.do(ctx, http.MethodPatch, "/communities/"+communityID+"/members/"+memberID+"/voice", body, nil)
}

func (c *Client) MuteMember(ctx context.Context, communityID, memberID string, muted bool) error {
	body := map[string]bool{"muted": muted}
	return c.do(ctx, http.MethodPatch, "/communities/"+communityID+"/members/"+memberID+"/voice", body, nil)
}

func (c *Client) DisconnectMember(ctx context.Context, communityID, memberID string) error {
	return c.do(ctx, http.MethodDelete, "/communities/"+communityID+"/members/"+memberID+"/voice", nil, nil)
}

func (c *Client) PostMessage(ctx context.Context, roomID, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/messages", map[string]string{"body": body}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+roomID+"/messages/"+messageID, nil, nil)
}

func (c *Client) PostControl(ctx context.Context, roomID string, panel ControlPanel) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/controls", panel, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) EditControl(ctx context.Context, roomID, messageID string, panel ControlPanel) error {
	return c.do(ctx, http.MethodPatch, "/rooms/"+roomID+"/controls/"+messageID, panel, nil)
}

func (c *Client) OpenModal(ctx context.Context, interactionToken string, modal ModalPrompt) error {
	return c.do(ctx, http.MethodPost, "/interactions/"+interactionToken+"/modal", modal, nil)
}

func (c *Client) RespondEphemeral(ctx context.Context, interactionToken, body string) error {
	return c.do(ctx, http.MethodPost, "/interactions/"+interactionToken+"/ephemeral", map[string]string{"body": body}, nil)
}

func (c *Client) Notify(ctx context.Context, memberID, title, body string) error {
	payload := map[string]string{"title": title, "body": body}
	return c.do(ctx, http.MethodPost, "/members/"+memberID+"/notify", payload, nil)
}

// eventEnvelope is the wire frame on the event websocket.
type eventEnvelope struct {
	Type        string         `json:"type"`
	Presence    *PresenceEvent `json:"presence,omitempty"`
	Interaction *Interaction   `json:"interaction,omitempty"`
}

func (c *Client) PresenceEvents(ctx context.Context) (<-chan PresenceEvent, error) {
	out := make(chan PresenceEvent, 64)
	err := c.streamEvents(ctx, "presence", func(env eventEnvelope) {
		if env.Presence != nil {
			out <- *env.Presence
		}
	}, func() { close(out) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Interactions(ctx context.Context) (<-chan Interaction, error) {
	out := make(chan Interaction, 64)
	err := c.streamEvents(ctx, "interaction", func(env eventEnvelope) {
		if env.Interaction != nil {
			out <- *env.Interaction
		}
	}, func() { close(out) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

// streamEvents dials the event websocket and pumps frames of the requested
// type until ctx is done, redialing with a small backoff on stream errors.
func (c *Client) streamEvents(ctx context.Context, kind string, deliver func(eventEnvelope), done func()) error {
	if c.wsURL == "" {
		return fmt.Errorf("platform client has no event websocket URL configured")
	}
	dialURL := c.wsURL + "?stream=" + kind

	go func() {
		defer done()
		for {
			if ctx.Err() != nil {
				return
			}
			conn, _, err := websocket.Dial(ctx, dialURL, &websocket.DialOptions{
				HTTPHeader: http.Header{"Authorization": {"Bearer " + c.token}},
			})
			if err != nil {
				c.log.Warnf("platform event dial (%s): %v", kind, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(3 * time.Second):
					continue
				}
			}
			c.readEvents(ctx, conn, kind, deliver)
		}
	}()
	return nil
}

func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, kind string, deliver func(eventEnvelope)) {
	defer conn.Close(websocket.StatusInternalError, "event reader finished")
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && ctx.Err() == nil {
				c.log.Warnf("platform event read (%s): %v", kind, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var env eventEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.log.Warnf("platform event decode (%s): %v", kind, err)
			continue
		}
		deliver(env)
	}
}
