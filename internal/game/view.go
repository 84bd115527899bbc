// internal/game/view.go
package game

// Status type discriminators.
const (
	StatusNotYetStarted = "not_yet_started"
	StatusInProgress    = "in_progress"
	StatusFinished      = "finished"
)

// PlayerStatus is one row of the public player list. Exactly one of
// the optional fields is meaningful for a given status type.
type PlayerStatus struct {
	Name string `json:"name"`

	// Lobby: whether the player has voted to start.
	Started *bool `json:"started,omitempty"`

	// In progress: "undecided", "decided" or "camp". A pending choice is
	// reported as "decided" without revealing which way it went.
	Move string `json:"move,omitempty"`

	// Finished: final standings.
	Loot      *int     `json:"loot,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	Winner    *bool    `json:"winner,omitempty"`
}

// Status is the public projection of a game's state: everything any
// viewer may see, with pending choices redacted.
type Status struct {
	Type      string         `json:"type"`
	Players   []PlayerStatus `json:"players"`
	Round     int            `json:"round,omitempty"`
	Table     []string       `json:"table,omitempty"`
	Captured  []string       `json:"captured,omitempty"`
	Pot       int            `json:"pot"`
	Artifacts []string       `json:"artifacts,omitempty"` // introduced, still drawable
}

// You is the requesting player's private view; never redacted.
type You struct {
	Name      string      `json:"name"`
	State     PlayerState `json:"state"`
	Loot      int         `json:"loot"`
	Artifacts []string    `json:"artifacts,omitempty"`
}

// ProjectStatus builds the public view of s.
func ProjectStatus(s *State) *Status {
	st := &Status{Pot: s.Pot, Round: s.Round}
	switch {
	case s.Finished:
		st.Type = StatusFinished
		for _, p := range s.Players {
			loot := p.Loot
			winner := p.State == StateWon
			st.Players = append(st.Players, PlayerStatus{
				Name:      p.Name,
				Loot:      &loot,
				Artifacts: Labels(p.Artifacts),
				Winner:    &winner,
			})
		}
	case !s.Started():
		st.Type = StatusNotYetStarted
		for _, p := range s.Players {
			started := p.State == StateCamp
			st.Players = append(st.Players, PlayerStatus{Name: p.Name, Started: &started})
		}
	default:
		st.Type = StatusInProgress
		st.Table = Labels(s.Table)
		st.Captured = Labels(s.Captured)
		st.Artifacts = Labels(s.Deck.ArtifactsInPlay)
		for _, p := range s.Players {
			st.Players = append(st.Players, PlayerStatus{Name: p.Name, Move: redactMove(p.State)})
		}
	}
	return st
}

// ProjectYou builds the private view for the named player, or nil if
// they are not in the game.
func ProjectYou(s *State, name string) *You {
	p := s.Player(name)
	if p == nil {
		return nil
	}
	return &You{
		Name:      p.Name,
		State:     p.State,
		Loot:      p.Loot,
		Artifacts: Labels(p.Artifacts),
	}
}

// redactMove collapses a live choice to the tri-state opponents see.
func redactMove(st PlayerState) string {
	switch st {
	case StateLando, StateHan:
		return "decided"
	case StateCamp:
		return "camp"
	default:
		return "undecided"
	}
}
