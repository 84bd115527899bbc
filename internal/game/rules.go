// internal/game/rules.go
//
// Pure transition logic. Every operation validates against the current
// state before touching it, mutates in place, and returns the semantic
// events describing what happened. Callers own atomicity: a state that
// came out of the store goes back in whole, together with its events,
// or not at all.
package game

import (
	"errors"
	"sort"
)

// Move choices.
const (
	MoveLando = "lando"
	MoveHan   = "han"
)

// MinPlayers is the smallest party that can start a game.
const MinPlayers = 2

// Join adds a player to a game that has not started. Names are taken
// verbatim; uniqueness within the game is the only constraint.
func (s *State) Join(name string) ([]Event, error) {
	if name == "" {
		return nil, reject("a player needs a name")
	}
	if s.Started() || s.Finished {
		return nil, reject("game has already started")
	}
	if s.Player(name) != nil {
		return nil, reject("the name %q is already taken", name)
	}
	s.Players = append(s.Players, &Player{Name: name, State: StateJoined})
	return []Event{Joined{Player: name}}, nil
}

// ConfirmStart records a player's vote to begin. The last confirmation
// of a full lobby seeds the deck, introduces the first artifact, deals
// the first card and moves everyone to Undecided.
func (s *State) ConfirmStart(name string) ([]Event, error) {
	if s.Started() || s.Finished {
		return nil, reject("game has already started")
	}
	p := s.Player(name)
	if p == nil {
		return nil, reject("%q is not in this game", name)
	}
	if p.State != StateJoined {
		return nil, reject("%q has already voted to start", name)
	}
	if len(s.Players) < MinPlayers {
		return nil, reject("at least %d players are needed", MinPlayers)
	}
	p.State = StateCamp
	events := []Event{Started{Player: name}}
	if s.countIn(StateJoined) == 0 {
		s.Deck = NewDeck()
		evs, err := s.beginRound()
		if err != nil {
			// A fresh deck always has an artifact to introduce.
			return nil, &InvariantError{Err: err}
		}
		events = append(events, evs...)
	}
	return events, nil
}

// Move records a player's choice for the current deal. The move that
// completes the deal triggers resolution synchronously.
func (s *State) Move(name, choice string) ([]Event, error) {
	if !s.Started() || s.Finished {
		return nil, reject("game is not in progress")
	}
	p := s.Player(name)
	if p == nil {
		return nil, reject("%q is not in this game", name)
	}
	if p.State != StateUndecided {
		return nil, reject("%q has no decision to make", name)
	}
	switch choice {
	case MoveLando:
		p.State = StateLando
	case MoveHan:
		p.State = StateHan
	default:
		return nil, reject("unknown move %q", choice)
	}
	events := []Event{Moved{Player: name}}
	if s.countIn(StateUndecided) == 0 {
		evs, err := s.resolve()
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// CanChat reports whether speaker may talk in this game. Chat never
// touches state, so this is the engine's entire involvement.
func (s *State) CanChat(speaker string) bool {
	return s.Player(speaker) != nil
}

// resolve runs once every player in the deal has chosen: loot split for
// the Landos, a fresh card for the Hans, then the round boundary if
// nobody is left venturing.
func (s *State) resolve() ([]Event, error) {
	var events []Event

	landos := s.playersIn(StateLando)
	hans := s.playersIn(StateHan)

	if len(landos) > 0 {
		events = append(events, s.splitLoot(landos)...)
	}

	if len(hans) > 0 {
		card, err := s.Deck.Draw()
		if err != nil {
			return nil, &InvariantError{Err: err}
		}
		s.Table = append(s.Table, card)
		events = append(events, CardRevealed{Card: card})

		if card.IsHazard() && s.hazardCount(card.Name) >= 2 {
			names := sortedNames(hans)
			for _, p := range hans {
				p.State = StateCamp
			}
			events = append(events, PlayerDied{Players: names, Hazard: card.Name})
		} else {
			for _, p := range hans {
				p.State = StateUndecided
			}
			events = append(events, Venturing{Players: sortedNames(hans)})
		}
	}

	if s.countIn(StateUndecided) == 0 {
		evs, err := s.endRound()
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// splitLoot divides pot + table treasures among the departing players.
// A lone Lando captures an artifact on the table; two or more destroy
// it. The remainder of the division seeds the next pot.
func (s *State) splitLoot(landos []*Player) []Event {
	var events []Event
	names := sortedNames(landos)

	loot := s.Pot
	var keep []Card
	for _, card := range s.Table {
		switch {
		case card.IsTreasure():
			loot += card.Value
			s.Captured = append(s.Captured, card)
		case card.IsArtifact():
			if len(landos) == 1 {
				value := s.Deck.ArtifactValue()
				loot += value
				landos[0].Artifacts = append(landos[0].Artifacts, card)
				events = append(events, ArtifactCaptured{
					Player:   landos[0].Name,
					Artifact: card.Name,
					Value:    value,
				})
			} else {
				events = append(events, ArtifactDestroyed{Players: names, Artifact: card.Name})
			}
		default:
			keep = append(keep, card)
		}
	}
	s.Table = keep

	payout := loot / len(landos)
	s.Pot = loot % len(landos)
	for _, p := range landos {
		p.Loot += payout
		p.State = StateCamp
	}
	events = append(events, LootSplit{Players: names, Payout: payout, Pot: s.Pot})
	return events
}

// endRound returns the round's cards to the deck and either begins the
// next round or, once all artifacts have been introduced, finishes the
// game. An artifact stranded on the table by a death stays out of the
// deck for good: the seen count must never count a card twice.
func (s *State) endRound() ([]Event, error) {
	for _, c := range s.Table {
		if !c.IsArtifact() {
			s.Deck.Return(c)
		}
	}
	for _, c := range s.Captured {
		s.Deck.Return(c)
	}
	s.Table = nil
	s.Captured = nil

	evs, err := s.beginRound()
	if err == nil {
		return evs, nil
	}
	if errors.Is(err, ErrDeckExhausted) {
		return s.finish(), nil
	}
	return nil, err
}

// beginRound introduces the next artifact, bumps the round, wakes every
// camped player and deals the round's first card.
func (s *State) beginRound() ([]Event, error) {
	art, err := s.Deck.IntroduceArtifact()
	if err != nil {
		return nil, err
	}
	s.Round++
	for _, p := range s.Players {
		if p.State == StateCamp {
			p.State = StateUndecided
		}
	}
	card, err := s.Deck.Draw()
	if err != nil {
		return nil, &InvariantError{Err: err}
	}
	s.Table = append(s.Table, card)
	return []Event{
		RoundAdvanced{Round: s.Round},
		ArtifactIntroduced{Artifact: art.Name},
		CardRevealed{Card: card},
	}, nil
}

// finish ranks players by loot, breaking ties by artifact count; all
// still tied are co-winners. The game becomes immutable except chat.
func (s *State) finish() []Event {
	bestLoot := 0
	for _, p := range s.Players {
		if p.Loot > bestLoot {
			bestLoot = p.Loot
		}
	}
	bestArtifacts := 0
	for _, p := range s.Players {
		if p.Loot == bestLoot && len(p.Artifacts) > bestArtifacts {
			bestArtifacts = len(p.Artifacts)
		}
	}

	results := make([]PlayerResult, 0, len(s.Players))
	for _, p := range s.Players {
		won := p.Loot == bestLoot && len(p.Artifacts) == bestArtifacts
		if won {
			p.State = StateWon
		} else {
			p.State = StateLost
		}
		results = append(results, PlayerResult{
			Name:      p.Name,
			Loot:      p.Loot,
			Artifacts: Labels(p.Artifacts),
			Winner:    won,
		})
	}
	s.Finished = true
	return []Event{GameOver{Results: results}}
}

func (s *State) hazardCount(kind string) int {
	n := 0
	for _, c := range s.Table {
		if c.IsHazard() && c.Name == kind {
			n++
		}
	}
	return n
}

func sortedNames(players []*Player) []string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}
