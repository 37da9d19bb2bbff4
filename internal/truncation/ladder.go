package truncation

import (
	"errors"
	"fmt"
)

// Ladder is a strictly increasing sequence of output-token budgets.
type Ladder []int

// NewLadder validates rungs and returns a copy as a Ladder.
func NewLadder(rungs []int) (Ladder, error) {
	if len(rungs) == 0 {
		return nil, errors.New("token ladder must not be empty")
	}
	for i, rung := range rungs {
		if rung <= 0 {
			return nil, fmt.Errorf("token ladder rung %d must be positive", i)
		}
		if i > 0 && rung <= rungs[i-1] {
			return nil, fmt.Errorf("token ladder must be strictly increasing (%d after %d)", rung, rungs[i-1])
		}
	}
	return append(Ladder(nil), rungs...), nil
}

// Next returns the first rung strictly greater than attempted. ok is false
// when attempted is at or beyond the top rung.
func (l Ladder) Next(attempted int) (int, bool) {
	for _, rung := range l {
		if rung > attempted {
			return rung, true
		}
	}
	return 0, false
}

// Max returns the top rung.
func (l Ladder) Max() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1]
}
