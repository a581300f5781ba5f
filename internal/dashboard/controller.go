// Package dashboard owns the persistent in-platform control surface: one
// interactive message per lobby, recreated if the platform loses it, with
// every accepted action funneled through the engine's command surface.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

// userCapChoices are the quick-pick user limits; 0 means unlimited.
var userCapChoices = []int{0, 2, 5, 10, 12}

// recentNameLimit caps the "recent names" quick-pick.
const recentNameLimit = 25

// Store is the slice of persistence the controller needs.
type Store interface {
	LobbyByRoom(ctx context.Context, roomID string) (*models.Lobby, error)
	UpdatePanelMessage(ctx context.Context, voiceRoomID, messageID string) error
	RecentRenames(ctx context.Context, communityID, ownerID string, limit int) ([]models.RenameEvent, error)
}

// Pairer hands out one-time codes linking the mobile app to an owner.
type Pairer interface {
	Begin(ctx context.Context, communityID, memberID string) (code string, ttl time.Duration, err error)
}

// Controller renders control surfaces and dispatches their interactions.
type Controller struct {
	Log    *logrus.Logger
	GW     platform.Gateway
	Store  Store
	Sink   models.CommandSink
	Pairer Pairer
}

// New builds a Controller.
func New(gw platform.Gateway, store Store, sink models.CommandSink, pairer Pairer, log *logrus.Logger) *Controller {
	return &Controller{Log: log, GW: gw, Store: store, Sink: sink, Pairer: pairer}
}

// Run consumes platform interactions until ctx is done. Each interaction is
// an independent task; failures degrade to an ephemeral message for the
// acting member.
func (c *Controller) Run(ctx context.Context) error {
	events, err := c.GW.Interactions(ctx)
	if err != nil {
		return fmt.Errorf("open interaction stream: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("interaction stream closed")
			}
			go func(ev platform.Interaction) {
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
				defer cancel()
				c.handle(hctx, ev)
			}(ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev platform.Interaction) {
	lob, err := c.Store.LobbyByRoom(ctx, ev.RoomID)
	if err != nil {
		// Interaction against a room we no longer track; tell the member
		// instead of silently eating the click.
		c.respond(ctx, ev, "This lobby no longer exists.")
		return
	}

	if ev.MemberID != lob.OwnerID {
		c.respond(ctx, ev, "Only the lobby owner can do that.")
		return
	}

	if err := c.dispatch(ctx, lob, ev); err != nil {
		c.Log.WithFields(logrus.Fields{
			"room":      lob.VoiceRoomID,
			"component": ev.ComponentID,
		}).Warnf("interaction failed: %v", err)
		c.respond(ctx, ev, "That didn't work: "+err.Error())
	}
}

func (c *Controller) dispatch(ctx context.Context, lob *models.Lobby, ev platform.Interaction) error {
	switch {
	case ev.ComponentID == "policy":
		pol, err := models.ParsePolicy(firstValue(ev))
		if err != nil {
			return err
		}
		return c.apply(ctx, lob, models.Command{Kind: models.CommandSetPolicy, Policy: pol})

	case ev.ComponentID == "limit":
		limit, err := strconv.Atoi(firstValue(ev))
		if err != nil {
			return fmt.Errorf("bad limit value %q", firstValue(ev))
		}
		return c.apply(ctx, lob, models.Command{Kind: models.CommandSetLimit, Limit: limit})

	case ev.ComponentID == "recent-name":
		return c.apply(ctx, lob, models.Command{Kind: models.CommandRename, Fragment: firstValue(ev)})

	case ev.ComponentID == "add-entities":
		for _, v := range ev.Values {
			cmd := models.Command{Kind: models.CommandAddMember}
			if id, ok := strings.CutPrefix(v, "role:"); ok {
				cmd.RoleID = id
			} else {
				cmd.MemberID = strings.TrimPrefix(v, "member:")
			}
			if err := c.apply(ctx, lob, cmd); err != nil {
				return err
			}
		}
		return nil

	case ev.ComponentID == "rename":
		return c.GW.OpenModal(ctx, ev.Token, platform.ModalPrompt{
			ID:      "rename-modal",
			Title:   "Rename lobby",
			Label:   "New name",
			Prefill: lob.NameFragment,
		})

	case ev.ComponentID == "rename-modal":
		return c.apply(ctx, lob, models.Command{Kind: models.CommandRename, Fragment: firstValue(ev)})

	case strings.HasPrefix(ev.ComponentID, "approve:"):
		memberID := strings.TrimPrefix(ev.ComponentID, "approve:")
		if err := c.apply(ctx, lob, models.Command{Kind: models.CommandAddMember, MemberID: memberID}); err != nil {
			return err
		}
		// The prompt is one-shot; drop it once answered.
		if err := c.GW.DeleteMessage(ctx, ev.RoomID, ev.MessageID); err != nil && !platform.IsNotFound(err) {
			c.Log.Warnf("delete join prompt: %v", err)
		}
		return nil

	case ev.ComponentID == "pair":
		code, ttl, err := c.Pairer.Begin(ctx, lob.CommunityID, lob.OwnerID)
		if err != nil {
			return fmt.Errorf("create pairing code: %w", err)
		}
		c.respond(ctx, ev, fmt.Sprintf("Pairing code: **%s** (valid %s)", code, ttl.Round(time.Minute)))
		return nil
	}
	return fmt.Errorf("unknown component %q", ev.ComponentID)
}

// apply forwards a command to the engine, translating a vanished lobby into
// a user-facing message.
func (c *Controller) apply(ctx context.Context, lob *models.Lobby, cmd models.Command) error {
	err := c.Sink.Apply(ctx, lob.CommunityID, lob.OwnerID, cmd)
	if errors.Is(err, models.ErrLobbyGone) {
		return fmt.Errorf("the lobby is already gone")
	}
	return err
}

func (c *Controller) respond(ctx context.Context, ev platform.Interaction, body string) {
	if err := c.GW.RespondEphemeral(ctx, ev.Token, body); err != nil {
		c.Log.Warnf("ephemeral response failed: %v", err)
	}
}

// Ensure makes the lobby's control surface exist and reflect current state,
// recreating the message when the platform has deleted it.
func (c *Controller) Ensure(ctx context.Context, lob *models.Lobby) error {
	panel, err := c.buildPanel(ctx, lob)
	if err != nil {
		return err
	}

	if lob.PanelMessageID != "" {
		err := c.GW.EditControl(ctx, lob.TextRoomID, lob.PanelMessageID, panel)
		if err == nil {
			return nil
		}
		if !platform.IsNotFound(err) {
			return fmt.Errorf("edit control surface: %w", err)
		}
	}

	messageID, err := c.GW.PostControl(ctx, lob.TextRoomID, panel)
	if err != nil {
		return fmt.Errorf("post control surface: %w", err)
	}
	if err := c.Store.UpdatePanelMessage(ctx, lob.VoiceRoomID, messageID); err != nil {
		return err
	}
	lob.PanelMessageID = messageID
	return nil
}

func (c *Controller) buildPanel(ctx context.Context, lob *models.Lobby) (platform.ControlPanel, error) {
	recent, err := c.Store.RecentRenames(ctx, lob.CommunityID, lob.OwnerID, recentNameLimit)
	if err != nil {
		return platform.ControlPanel{}, err
	}

	policySelect := platform.Select{ID: "policy", Placeholder: "Access policy"}
	for _, p := range []models.Policy{models.PolicyPublic, models.PolicyMuted, models.PolicyLocked} {
		label := string(p)
		label = strings.ToUpper(label[:1]) + label[1:]
		policySelect.Options = append(policySelect.Options, platform.SelectOption{
			Label:    label,
			Value:    string(p),
			Selected: p == lob.Policy,
			Disabled: p == lob.Policy,
		})
	}

	limitSelect := platform.Select{ID: "limit", Placeholder: "User limit"}
	for _, n := range userCapChoices {
		label := strconv.Itoa(n)
		if n == 0 {
			label = "No limit"
		}
		limitSelect.Options = append(limitSelect.Options, platform.SelectOption{
			Label:    label,
			Value:    strconv.Itoa(n),
			Selected: n == lob.UserLimit,
			Disabled: n == lob.UserLimit,
		})
	}

	panel := platform.ControlPanel{
		Title:   "Lobby controls",
		Body:    fmt.Sprintf("Policy: %s · Limit: %d", lob.Policy, lob.UserLimit),
		Selects: []platform.Select{policySelect, limitSelect},
		Buttons: []platform.Button{
			{ID: "rename", Label: "Rename…"},
			{ID: "pair", Label: "Pair mobile app"},
		},
	}

	if len(recent) > 0 {
		nameSelect := platform.Select{ID: "recent-name", Placeholder: "Recent names"}
		for _, ev := range recent {
			nameSelect.Options = append(nameSelect.Options, platform.SelectOption{Label: ev.Fragment, Value: ev.Fragment})
		}
		panel.Selects = append(panel.Selects, nameSelect)
	}
	panel.Selects = append(panel.Selects, platform.Select{
		ID:           "add-entities",
		Placeholder:  "Allow members or roles",
		Multi:        true,
		EntityPicker: true,
	})
	return panel, nil
}

func firstValue(ev platform.Interaction) string {
	if len(ev.Values) == 0 {
		return ""
	}
	return ev.Values[0]
}
