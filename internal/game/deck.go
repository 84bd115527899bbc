// internal/game/deck.go
package game

import (
	"errors"
	"math/rand"
)

// ErrDeckExhausted is returned by IntroduceArtifact when all five
// artifacts have already been introduced; it signals the end of the game
// to the rules engine.
var ErrDeckExhausted = errors.New("deck: no artifacts left to introduce")

// ErrDeckEmpty is returned by Draw when no cards remain. Round
// bookkeeping guarantees this cannot happen, so the engine treats it as
// an invariant violation rather than a user error.
var ErrDeckEmpty = errors.New("deck: no cards remaining")

// Deck owns the unseen card population for one game. Every card is in
// exactly one of: Remaining, the table, the captured pile, a player's
// artifact collection, or destroyed.
type Deck struct {
	Remaining []Card `json:"remaining"`

	// ArtifactsUnseen is the shuffled order of artifact identities not
	// yet introduced. ArtifactsInPlay are introduced but still undrawn.
	ArtifactsUnseen []Card `json:"artifactsUnseen"`
	ArtifactsInPlay []Card `json:"artifactsInPlay"`

	// ArtifactsSeen counts artifacts drawn to the table across the whole
	// game. It only ever increases and never exceeds five.
	ArtifactsSeen int `json:"artifactsSeen"`
}

// NewDeck populates the fixed treasure and hazard multisets and shuffles
// the artifact introduction order. No artifact is in the deck until the
// first IntroduceArtifact call.
func NewDeck() *Deck {
	d := &Deck{}
	for _, v := range TreasureValues {
		d.Remaining = append(d.Remaining, Treasure(v))
	}
	for _, kind := range HazardKinds {
		for i := 0; i < HazardCopies; i++ {
			d.Remaining = append(d.Remaining, Hazard(kind))
		}
	}
	for _, name := range ArtifactNames {
		d.ArtifactsUnseen = append(d.ArtifactsUnseen, Artifact(name))
	}
	rand.Shuffle(len(d.ArtifactsUnseen), func(i, j int) {
		d.ArtifactsUnseen[i], d.ArtifactsUnseen[j] = d.ArtifactsUnseen[j], d.ArtifactsUnseen[i]
	})
	return d
}

// IntroduceArtifact moves the next unseen artifact into the drawable
// population and reports which one it was.
func (d *Deck) IntroduceArtifact() (Card, error) {
	if len(d.ArtifactsUnseen) == 0 {
		return Card{}, ErrDeckExhausted
	}
	art := d.ArtifactsUnseen[0]
	d.ArtifactsUnseen = d.ArtifactsUnseen[1:]
	d.Remaining = append(d.Remaining, art)
	d.ArtifactsInPlay = append(d.ArtifactsInPlay, art)
	return art, nil
}

// Draw removes one uniformly random card from the remaining population.
// Drawing an artifact bumps the seen count and retires it from the
// in-play pool.
func (d *Deck) Draw() (Card, error) {
	if len(d.Remaining) == 0 {
		return Card{}, ErrDeckEmpty
	}
	i := rand.Intn(len(d.Remaining))
	card := d.Remaining[i]
	d.Remaining = append(d.Remaining[:i], d.Remaining[i+1:]...)
	if card.IsArtifact() {
		d.ArtifactsSeen++
		d.removeInPlay(card)
	}
	return card, nil
}

// ArtifactValue is the single authority for the artifact payout
// schedule: the first three artifacts seen are worth 5, the rest 10.
func (d *Deck) ArtifactValue() int {
	if d.ArtifactsSeen <= 3 {
		return 5
	}
	return 10
}

// Return pushes a card back into the remaining population. Used when a
// round's table and captured pile are put back before the next round.
func (d *Deck) Return(card Card) {
	d.Remaining = append(d.Remaining, card)
}

func (d *Deck) removeInPlay(card Card) {
	for i, c := range d.ArtifactsInPlay {
		if c.Name == card.Name {
			d.ArtifactsInPlay = append(d.ArtifactsInPlay[:i], d.ArtifactsInPlay[i+1:]...)
			return
		}
	}
}
