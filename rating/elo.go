package rating

import (
	"math"
)

const (
	defaultK     = 32.0
	defaultFloor = 100
)

// Scores for Update
const (
	Win  = 1.0
	Draw = 0.5
	Loss = 0.0
)

// Elo implements the rating update applied after a debate
type Elo struct {
	K     float64
	Floor int
}

// New creates an Elo system; k <= 0 selects the default factor of 32
func New(k float64) *Elo {
	if k <= 0 {
		k = defaultK
	}
	return &Elo{K: k, Floor: defaultFloor}
}

// Expected returns the expected score of a player rated a against one rated b
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Update returns the new ratings of both players.
// score is from a's point of view: Win, Draw or Loss.
func (e *Elo) Update(a, b int, score float64) (int, int) {
	score = math.Max(0, math.Min(1, score))

	ea := Expected(a, b)
	delta := e.K * (score - ea)

	newA := int(math.Round(float64(a) + delta))
	newB := int(math.Round(float64(b) - delta))

	return e.clamp(newA), e.clamp(newB)
}

func (e *Elo) clamp(r int) int {
	if r < e.Floor {
		return e.Floor
	}
	return r
}
