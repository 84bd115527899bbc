// internal/game/card.go
package game

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CardKind discriminates the three card variants in the expedition deck.
type CardKind string

const (
	KindTreasure CardKind = "treasure"
	KindHazard   CardKind = "hazard"
	KindArtifact CardKind = "artifact"
)

// Card is an immutable card value. Treasures of equal value are
// interchangeable; hazards come in kinds; artifacts are unique identities.
type Card struct {
	Kind  CardKind `json:"kind"`
	Value int      `json:"value,omitempty"` // treasures only
	Name  string   `json:"name,omitempty"`  // hazards and artifacts
}

// TreasureValues is the fixed treasure multiset dealt into every deck.
var TreasureValues = []int{1, 2, 3, 4, 5, 5, 7, 7, 9, 11, 11, 13, 14, 15, 17}

// HazardKinds are the five hazard families; each appears three times.
var HazardKinds = []string{"snakes", "spiders", "fire", "rockslide", "zombies"}

// HazardCopies is how many copies of each hazard kind the deck holds.
const HazardCopies = 3

// ArtifactNames are the five unique artifacts, introduced one per round
// in a shuffled order.
var ArtifactNames = []string{"idol", "chalice", "mask", "skull", "compass"}

func Treasure(value int) Card { return Card{Kind: KindTreasure, Value: value} }
func Hazard(name string) Card { return Card{Kind: KindHazard, Name: name} }

func Artifact(name string) Card { return Card{Kind: KindArtifact, Name: name} }

// Label is the human-readable name used in status views and chat-free
// event payloads. Treasures are labeled by their value.
func (c Card) Label() string {
	if c.Kind == KindTreasure {
		return strconv.Itoa(c.Value)
	}
	return c.Name
}

func (c Card) IsTreasure() bool { return c.Kind == KindTreasure }
func (c Card) IsHazard() bool   { return c.Kind == KindHazard }
func (c Card) IsArtifact() bool { return c.Kind == KindArtifact }

// UnmarshalJSON validates the kind tag so a corrupted state record fails
// loudly instead of producing a zero-kind card.
func (c *Card) UnmarshalJSON(data []byte) error {
	type alias Card
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	switch a.Kind {
	case KindTreasure, KindHazard, KindArtifact:
		*c = Card(a)
		return nil
	default:
		return fmt.Errorf("unknown card kind %q", a.Kind)
	}
}

// Labels maps a card slice to its labels, preserving order.
func Labels(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Label()
	}
	return out
}
