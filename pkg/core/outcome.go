package core

import "fmt"

// MatchThreshold is the minimum template confidence accepted as a match.
const MatchThreshold = 0.8

// MatchOutcome is the result of one match attempt: either a point with a
// confidence, or not found. The zero value is NotFound.
type MatchOutcome struct {
	found      bool
	point      Point
	confidence float64
}

// Found builds a positive outcome.
func Found(x, y int, confidence float64) MatchOutcome {
	return MatchOutcome{found: true, point: Point{X: x, Y: y}, confidence: confidence}
}

// NotFound builds a negative outcome.
func NotFound() MatchOutcome {
	return MatchOutcome{}
}

// Found reports whether the target was located.
func (o MatchOutcome) Found() bool { return o.found }

// Point returns the match point; zero when not found.
func (o MatchOutcome) Point() Point { return o.point }

// Confidence returns the match confidence in [0,1]; zero when not found.
func (o MatchOutcome) Confidence() float64 { return o.confidence }

func (o MatchOutcome) String() string {
	if !o.found {
		return "not found"
	}
	return fmt.Sprintf("found at %s (%.2f)", o.point, o.confidence)
}
