// internal/game/state.go
package game

import "encoding/json"

// PlayerState is the per-player position in the state machine:
// Joined -> Camp -> {Undecided <-> (Lando|Han)} -> Camp | Won | Lost.
type PlayerState string

const (
	StateJoined    PlayerState = "joined"
	StateCamp      PlayerState = "camp"
	StateUndecided PlayerState = "undecided"
	StateLando     PlayerState = "lando"
	StateHan       PlayerState = "han"
	StateWon       PlayerState = "won"
	StateLost      PlayerState = "lost"
)

// Player is created at join and lives as long as the game. Name is
// unique within the game and immutable; Loot never decreases.
type Player struct {
	Name      string      `json:"name"`
	State     PlayerState `json:"state"`
	Loot      int         `json:"loot"`
	Artifacts []Card      `json:"artifacts,omitempty"`
}

// State is the persisted per-game record. Round 0 means the game has
// not started; Finished means every player is Won or Lost and nothing
// but chat may follow.
type State struct {
	Round    int       `json:"round"`
	Table    []Card    `json:"table,omitempty"`
	Captured []Card    `json:"captured,omitempty"`
	Pot      int       `json:"pot"`
	Players  []*Player `json:"players,omitempty"` // join order
	Deck     *Deck     `json:"deck,omitempty"`    // nil until started
	Finished bool      `json:"finished,omitempty"`
}

// NewState is the empty lobby a first join creates.
func NewState() *State {
	return &State{}
}

// DecodeState unmarshals a persisted state record.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode marshals the state for persistence.
func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Player returns the named player, or nil if unknown.
func (s *State) Player(name string) *Player {
	for _, p := range s.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Started reports whether play has begun.
func (s *State) Started() bool { return s.Round > 0 }

func (s *State) countIn(states ...PlayerState) int {
	n := 0
	for _, p := range s.Players {
		for _, st := range states {
			if p.State == st {
				n++
				break
			}
		}
	}
	return n
}

func (s *State) playersIn(state PlayerState) []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.State == state {
			out = append(out, p)
		}
	}
	return out
}
