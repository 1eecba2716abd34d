package match

import (
	"strconv"
	"strings"
	"time"
)

// DefaultEstimatedDuration is used when a time control cannot be parsed.
const DefaultEstimatedDuration = 5 * time.Minute

// assumedMoveCount approximates how many moves each player makes in a
// casual game, for converting a per-move increment into clock time.
const assumedMoveCount = 40

// EstimateDuration estimates how long a game with the given time control
// should take: base time for both players plus increment time for an
// assumed move count on each side. The first result check is delayed by
// this much so API calls are not wasted on games still in progress.
//
// Accepted forms: "600+5" (seconds+increment, platform archive style),
// "10|5" (minutes|increment, challenge UI style) and a bare number
// (seconds when >= 60, minutes otherwise).
func EstimateDuration(timeControl string) time.Duration {
	base, increment, ok := parseTimeControl(timeControl)
	if !ok {
		return DefaultEstimatedDuration
	}

	est := base*2 + time.Duration(assumedMoveCount)*increment*2
	if est <= 0 {
		return DefaultEstimatedDuration
	}
	return est
}

func parseTimeControl(tc string) (base, increment time.Duration, ok bool) {
	tc = strings.TrimSpace(tc)
	if tc == "" {
		return 0, 0, false
	}

	var baseStr, incStr string
	var baseUnit time.Duration

	switch {
	case strings.Contains(tc, "|"):
		parts := strings.SplitN(tc, "|", 2)
		baseStr, incStr = parts[0], parts[1]
		baseUnit = time.Minute
	case strings.Contains(tc, "+"):
		parts := strings.SplitN(tc, "+", 2)
		baseStr, incStr = parts[0], parts[1]
		baseUnit = time.Second
	default:
		baseStr = tc
		baseUnit = time.Second
	}

	baseVal, err := strconv.Atoi(strings.TrimSpace(baseStr))
	if err != nil || baseVal <= 0 {
		return 0, 0, false
	}

	// A bare small number reads as minutes ("10" means a 10-minute game).
	if baseUnit == time.Second && !strings.Contains(tc, "+") && baseVal < 60 {
		baseUnit = time.Minute
	}

	incVal := 0
	if incStr != "" {
		incVal, err = strconv.Atoi(strings.TrimSpace(incStr))
		if err != nil || incVal < 0 {
			return 0, 0, false
		}
	}

	return time.Duration(baseVal) * baseUnit, time.Duration(incVal) * time.Second, true
}
