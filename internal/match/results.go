package match

import (
	"log"
	"strings"

	"github.com/chessstake/backend/internal/chessapi"
	"github.com/chessstake/backend/internal/metrics"
)

// Outcome is the settlement-relevant classification of a finished game.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeChallengerWins
	OutcomeOpponentWins
)

// Label returns the storage name for the outcome.
func (o Outcome) Label() string {
	switch o {
	case OutcomeChallengerWins:
		return "challenger_win"
	case OutcomeOpponentWins:
		return "opponent_win"
	default:
		return "draw"
	}
}

// ParseOutcome maps an operator-supplied outcome name. The second return is
// false for names outside the accepted set.
func ParseOutcome(s string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "challenger_win", "challenger":
		return OutcomeChallengerWins, true
	case "opponent_win", "opponent":
		return OutcomeOpponentWins, true
	case "draw":
		return OutcomeDraw, true
	}
	return OutcomeDraw, false
}

// Closed vocabulary of per-color result strings. Lookup tables, not
// substring checks, so a new provider string can never silently
// misclassify.
var decisiveLossReasons = map[string]bool{
	"checkmated":     true,
	"resigned":       true,
	"timeout":        true,
	"abandoned":      true,
	"adjudication":   true,
	"rule_violation": true,
	"lose":           true,
}

var drawReasons = map[string]bool{
	"stalemate":          true,
	"repetition":         true,
	"insufficient":       true,
	"agreed":             true,
	"50move":             true,
	"aborted":            true,
	"timevsinsufficient": true,
}

// Classify maps a finished game's per-color results to a settlement
// outcome, resolving the winner by username, never by any provider-supplied
// user id. Combinations outside the known vocabulary settle as a draw (the
// fail-safe favors players over the house); each one is logged and counted
// for manual review, and the raw payload stays on the ongoing_matches row.
func Classify(game chessapi.Game, challengerUsername string) (Outcome, bool) {
	challengerIsWhite := strings.EqualFold(game.White.Username, challengerUsername)

	white := strings.ToLower(game.White.Result)
	black := strings.ToLower(game.Black.Result)

	switch {
	case white == "win" && decisiveLossReasons[black]:
		if challengerIsWhite {
			return OutcomeChallengerWins, true
		}
		return OutcomeOpponentWins, true
	case black == "win" && decisiveLossReasons[white]:
		if challengerIsWhite {
			return OutcomeOpponentWins, true
		}
		return OutcomeChallengerWins, true
	case drawReasons[white] && drawReasons[black]:
		return OutcomeDraw, true
	}

	log.Printf("[POLLER] Unrecognized result combination white=%q black=%q (%s) - settling as draw",
		game.White.Result, game.Black.Result, game.URL)
	metrics.UnknownResultReasons.Inc()
	return OutcomeDraw, false
}
