// internal/game/events.go
//
// The update log carries a closed set of event kinds, one concrete type
// per kind. Anything the engine does that a viewer can observe is
// expressed as one of these; there is no free-form payload.
package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one semantic thing that happened in a game.
type Event interface {
	Kind() string
}

// Chat is a player (or system) message. It is the only event that may
// be appended to a finished game, and it never changes game state.
type Chat struct {
	Speaker string `json:"speaker"`
	Message string `json:"message"`
	System  bool   `json:"system,omitempty"`
}

// Joined reports a player entering the lobby.
type Joined struct {
	Player string `json:"player"`
}

// Started reports a player confirming they are ready to start.
type Started struct {
	Player string `json:"player"`
}

// RoundAdvanced reports the round counter moving, including to 1 at
// game start.
type RoundAdvanced struct {
	Round int `json:"round"`
}

// ArtifactIntroduced reports an artifact entering the drawable deck.
type ArtifactIntroduced struct {
	Artifact string `json:"artifact"`
}

// CardRevealed reports a card drawn face-up onto the table.
type CardRevealed struct {
	Card Card `json:"card"`
}

// Moved reports that a player has decided this deal. The choice itself
// stays secret until resolution, so it is not part of the event.
type Moved struct {
	Player string `json:"player"`
}

// Venturing reports the players pressing on after a safe reveal.
type Venturing struct {
	Players []string `json:"players"`
}

// PlayerDied reports a hazard pair wiping out every venturing player.
type PlayerDied struct {
	Players []string `json:"players"`
	Hazard  string   `json:"hazard"`
}

// ArtifactCaptured reports a lone departing player claiming an artifact.
type ArtifactCaptured struct {
	Player   string `json:"player"`
	Artifact string `json:"artifact"`
	Value    int    `json:"value"`
}

// ArtifactDestroyed reports an artifact lost because two or more
// players tried to leave with it at once.
type ArtifactDestroyed struct {
	Players  []string `json:"players"`
	Artifact string   `json:"artifact"`
}

// LootSplit reports the table being divided among departing players.
// Payout is per player; Pot is the remainder carried forward.
type LootSplit struct {
	Players []string `json:"players"`
	Payout  int      `json:"payout"`
	Pot     int      `json:"pot"`
}

// PlayerResult is one line of the final standings.
type PlayerResult struct {
	Name      string   `json:"name"`
	Loot      int      `json:"loot"`
	Artifacts []string `json:"artifacts,omitempty"`
	Winner    bool     `json:"winner"`
}

// GameOver reports the final standings once no artifacts remain.
type GameOver struct {
	Results []PlayerResult `json:"results"`
}

func (Chat) Kind() string               { return "chat" }
func (Joined) Kind() string             { return "joined" }
func (Started) Kind() string            { return "started" }
func (RoundAdvanced) Kind() string      { return "round-advanced" }
func (ArtifactIntroduced) Kind() string { return "artifact-introduced" }
func (CardRevealed) Kind() string       { return "card-revealed" }
func (Moved) Kind() string              { return "moved" }
func (Venturing) Kind() string          { return "venturing" }
func (PlayerDied) Kind() string         { return "player-died" }
func (ArtifactCaptured) Kind() string   { return "artifact-captured" }
func (ArtifactDestroyed) Kind() string  { return "artifact-destroyed" }
func (LootSplit) Kind() string          { return "loot-split" }
func (GameOver) Kind() string           { return "game-over" }

// envelope is the wire form of an event payload in the update log.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent serializes an event for the update log.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: ev.Kind(), Data: data})
}

// DecodeEvent restores an event from its wire form. Unknown kinds are
// an error: the set is closed and a mismatch means a corrupted log or a
// version skew worth surfacing.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return decodeKind(env.Kind, env.Data)
}

func decodeKind(kind string, data json.RawMessage) (Event, error) {
	var ev Event
	switch kind {
	case "chat":
		ev = &Chat{}
	case "joined":
		ev = &Joined{}
	case "started":
		ev = &Started{}
	case "round-advanced":
		ev = &RoundAdvanced{}
	case "artifact-introduced":
		ev = &ArtifactIntroduced{}
	case "card-revealed":
		ev = &CardRevealed{}
	case "moved":
		ev = &Moved{}
	case "venturing":
		ev = &Venturing{}
	case "player-died":
		ev = &PlayerDied{}
	case "artifact-captured":
		ev = &ArtifactCaptured{}
	case "artifact-destroyed":
		ev = &ArtifactDestroyed{}
	case "loot-split":
		ev = &LootSplit{}
	case "game-over":
		ev = &GameOver{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return deref(ev), nil
}

// deref returns the value behind the pointer so callers can type-switch
// on concrete event types directly.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *Chat:
		return *e
	case *Joined:
		return *e
	case *Started:
		return *e
	case *RoundAdvanced:
		return *e
	case *ArtifactIntroduced:
		return *e
	case *CardRevealed:
		return *e
	case *Moved:
		return *e
	case *Venturing:
		return *e
	case *PlayerDied:
		return *e
	case *ArtifactCaptured:
		return *e
	case *ArtifactDestroyed:
		return *e
	case *LootSplit:
		return *e
	case *GameOver:
		return *e
	}
	return ev
}

// Entry is one numbered line of a game's update log as exposed to
// viewers. IDs start at 1 and double as the game's logical clock.
type Entry struct {
	ID    int64
	At    time.Time
	Event Event
}

// MarshalJSON flattens the entry into {id, at, kind, data}.
func (e Entry) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID   int64           `json:"id"`
		At   time.Time       `json:"at"`
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data,omitempty"`
	}{e.ID, e.At, e.Event.Kind(), data})
}

// UnmarshalJSON is the inverse of MarshalJSON, so log entries survive a
// trip through a client.
func (e *Entry) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID   int64           `json:"id"`
		At   time.Time       `json:"at"`
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	ev, err := decodeKind(wire.Kind, wire.Data)
	if err != nil {
		return err
	}
	*e = Entry{ID: wire.ID, At: wire.At, Event: ev}
	return nil
}
