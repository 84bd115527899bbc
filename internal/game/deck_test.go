// internal/game/deck_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckComposition(t *testing.T) {
	d := NewDeck()

	treasures, hazards := 0, 0
	treasureSum := 0
	hazardByKind := map[string]int{}
	for _, c := range d.Remaining {
		switch {
		case c.IsTreasure():
			treasures++
			treasureSum += c.Value
		case c.IsHazard():
			hazards++
			hazardByKind[c.Name]++
		default:
			t.Fatalf("unexpected card in fresh deck: %+v", c)
		}
	}

	assert.Equal(t, 15, treasures)
	assert.Equal(t, 124, treasureSum)
	assert.Equal(t, 15, hazards)
	for _, kind := range HazardKinds {
		assert.Equal(t, HazardCopies, hazardByKind[kind], kind)
	}

	// No artifact is drawable until introduced.
	assert.Len(t, d.ArtifactsUnseen, 5)
	assert.Empty(t, d.ArtifactsInPlay)
	assert.Zero(t, d.ArtifactsSeen)
}

func TestIntroduceArtifact(t *testing.T) {
	d := NewDeck()
	before := len(d.Remaining)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		art, err := d.IntroduceArtifact()
		require.NoError(t, err)
		require.True(t, art.IsArtifact())
		assert.False(t, seen[art.Name], "artifact introduced twice: %s", art.Name)
		seen[art.Name] = true
	}
	assert.Len(t, d.Remaining, before+5)
	assert.Len(t, d.ArtifactsInPlay, 5)

	_, err := d.IntroduceArtifact()
	assert.ErrorIs(t, err, ErrDeckExhausted)
}

func TestDrawArtifactBumpsSeenCount(t *testing.T) {
	art := Artifact("idol")
	d := &Deck{
		Remaining:       []Card{art},
		ArtifactsInPlay: []Card{art},
	}

	card, err := d.Draw()
	require.NoError(t, err)
	assert.Equal(t, art, card)
	assert.Equal(t, 1, d.ArtifactsSeen)
	assert.Empty(t, d.ArtifactsInPlay)
	assert.Empty(t, d.Remaining)

	_, err = d.Draw()
	assert.ErrorIs(t, err, ErrDeckEmpty)
}

func TestDrawNeverDecreasesSeenCount(t *testing.T) {
	d := NewDeck()
	_, err := d.IntroduceArtifact()
	require.NoError(t, err)

	prev := 0
	for len(d.Remaining) > 0 {
		_, err := d.Draw()
		require.NoError(t, err)
		require.GreaterOrEqual(t, d.ArtifactsSeen, prev)
		prev = d.ArtifactsSeen
	}
	assert.Equal(t, 1, d.ArtifactsSeen)
}

func TestArtifactValueSchedule(t *testing.T) {
	d := &Deck{}
	for seen, want := range map[int]int{0: 5, 1: 5, 2: 5, 3: 5, 4: 10, 5: 10} {
		d.ArtifactsSeen = seen
		assert.Equal(t, want, d.ArtifactValue(), "seen=%d", seen)
	}
}
