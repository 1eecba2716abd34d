package match

import (
	"testing"

	"github.com/chessstake/backend/internal/chessapi"
	"github.com/stretchr/testify/assert"
)

func game(whiteUser, whiteResult, blackUser, blackResult string) chessapi.Game {
	return chessapi.Game{
		White: chessapi.GameSide{Username: whiteUser, Result: whiteResult},
		Black: chessapi.GameSide{Username: blackUser, Result: blackResult},
	}
}

func TestClassifyDecisive(t *testing.T) {
	tests := []struct {
		name string
		game chessapi.Game
		want Outcome
	}{
		{"challenger white wins by checkmate", game("alice", "win", "bob", "checkmated"), OutcomeChallengerWins},
		{"challenger white wins on time", game("alice", "win", "bob", "timeout"), OutcomeChallengerWins},
		{"challenger black wins by resignation", game("bob", "resigned", "alice", "win"), OutcomeChallengerWins},
		{"opponent wins by abandonment", game("alice", "abandoned", "bob", "win"), OutcomeOpponentWins},
		{"opponent wins by rule violation", game("bob", "win", "alice", "rule_violation"), OutcomeOpponentWins},
		{"case-insensitive usernames", game("ALICE", "win", "Bob", "resigned"), OutcomeChallengerWins},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, known := Classify(tt.game, "alice")
			assert.True(t, known)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestClassifyDraws(t *testing.T) {
	for _, reason := range []string{"stalemate", "repetition", "insufficient", "agreed", "50move", "aborted"} {
		t.Run(reason, func(t *testing.T) {
			outcome, known := Classify(game("alice", reason, "bob", reason), "alice")
			assert.True(t, known)
			assert.Equal(t, OutcomeDraw, outcome)
		})
	}
}

func TestClassifyUnknownDefaultsToDraw(t *testing.T) {
	tests := []chessapi.Game{
		game("alice", "win", "bob", "kingofthehill"), // loss reason outside the vocabulary
		game("alice", "win", "bob", "agreed"),        // contradictory combination
		game("alice", "", "bob", ""),                 // missing results
		game("alice", "win", "bob", "win"),           // two winners
	}

	for _, g := range tests {
		outcome, known := Classify(g, "alice")
		assert.False(t, known)
		assert.Equal(t, OutcomeDraw, outcome)
	}
}
