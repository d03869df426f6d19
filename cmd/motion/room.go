package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/event"
	"github.com/vango-dev/motion/pkg/pubsub"
	"github.com/vango-dev/motion/pkg/render"
)

const (
	defaultRoom    = "lobby"
	maxRoomHistory = 20
	publishTimeout = 2 * time.Second
)

var errEmptyMessage = errors.New("room: empty message")

// roomState is the serialized form of a room component.
type roomState struct {
	Room     string   `json:"room"`
	Count    int      `json:"count"`
	Messages []string `json:"messages,omitempty"`
}

// room is the demo component: a chat room with a shared counter.
//
// Motions:
//   - increment: bump the local counter
//   - say: publish the form field "message" to the room
//   - join: switch to the room named by the target's data-room attribute
//     or the form field "room"
//   - refresh: force a render on the next reconciliation
type room struct {
	component.Motions

	state   roomState
	forced  bool
	publish func(topic string, msg any)
}

func roomTopic(name string) string {
	return "room:" + name
}

func newRoom(state roomState, publish func(topic string, msg any)) *room {
	if state.Room == "" {
		state.Room = defaultRoom
	}
	r := &room{state: state, publish: publish}
	r.Map("increment", func(*event.Event) error {
		r.state.Count++
		return nil
	})
	r.Map("say", r.say)
	r.Map("join", r.join)
	r.Map("refresh", func(*event.Event) error {
		r.forced = true
		return nil
	})
	return r
}

func (r *room) say(ev *event.Event) error {
	text := strings.TrimSpace(formValue(ev, "message"))
	if text == "" {
		return errEmptyMessage
	}
	r.publish(roomTopic(r.state.Room), text)
	return nil
}

func (r *room) join(ev *event.Event) error {
	name := ""
	if ev != nil {
		if t := ev.Target(); t != nil {
			name = t.Data("room")
		}
	}
	if name == "" {
		name = formValue(ev, "room")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room: join needs a room name")
	}
	if name != r.state.Room {
		r.state.Room = name
		r.state.Messages = nil
	}
	return nil
}

func formValue(ev *event.Event, key string) string {
	if ev == nil {
		return ""
	}
	return ev.FormData().Get(key)
}

func (r *room) Connected() error    { return nil }
func (r *room) Disconnected() error { return nil }

func (r *room) ProcessBroadcast(_ string, msg any) error {
	text, ok := msg.(string)
	if !ok {
		return fmt.Errorf("room: unexpected broadcast %T", msg)
	}
	r.state.Messages = append(r.state.Messages, text)
	if n := len(r.state.Messages); n > maxRoomHistory {
		r.state.Messages = r.state.Messages[n-maxRoomHistory:]
	}
	return nil
}

func (r *room) Broadcasts() []string {
	return []string{roomTopic(r.state.Room)}
}

func (r *room) RenderFingerprint() (component.Fingerprint, error) {
	data, err := json.Marshal(r.state)
	if err != nil {
		return "", err
	}
	return component.HashFingerprint(data), nil
}

// AwaitingForcedRerender reports and clears a pending refresh.
func (r *room) AwaitingForcedRerender() bool {
	forced := r.forced
	r.forced = false
	return forced
}

// Accessors for the template.
func (r *room) Room() string       { return r.state.Room }
func (r *room) Count() int         { return r.state.Count }
func (r *room) Messages() []string { return r.state.Messages }

// roomSerializer decodes room state. An empty state opens the lobby.
func roomSerializer(hub *pubsub.Hub, logger *slog.Logger) component.Serializer {
	publish := func(topic string, msg any) {
		// The publisher's own subscription is served under the session lock
		// the caller holds, so delivery must not be awaited here.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if _, err := hub.Publish(ctx, topic, msg); err != nil {
				logger.Warn("publish failed", "topic", topic, "error", err)
			}
		}()
	}
	return component.SerializerFunc(func(state string) (component.Component, error) {
		var s roomState
		if state != "" {
			if err := json.Unmarshal([]byte(state), &s); err != nil {
				return nil, fmt.Errorf("room: decode state: %w", err)
			}
		}
		return newRoom(s, publish), nil
	})
}

var roomTemplate = template.Must(template.New("room").Parse(
	`<section class="room" data-room="{{.Room}}">` +
		`<h1>#{{.Room}}</h1>` +
		`<button data-motion="increment">Count: {{.Count}}</button>` +
		`<ul>{{range .Messages}}<li>{{.}}</li>{{end}}</ul>` +
		`<form data-motion="say"><input name="message"></form>` +
		`</section>`))

// roomRenderer renders rooms wrapped in the connection's key.
func roomRenderer(sessionID string) (component.Renderer, error) {
	return render.Wrap(render.Template(roomTemplate), sessionID), nil
}
