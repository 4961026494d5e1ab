// Package ballot implements the Borda-count rank vote run over the current
// selection at the end of a movie night.
package ballot

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySelection indicates there are no movies to vote on.
	ErrEmptySelection = errors.New("ballot: empty selection")
	// ErrNoBallots indicates a tally was requested without any voters.
	ErrNoBallots = errors.New("ballot: no ballots submitted")
	// ErrInvalidBallot indicates at least one ballot is not a permutation of
	// ranks 1..M. A single invalid ballot rejects the whole tally.
	ErrInvalidBallot = errors.New("ballot: invalid ballot")
)

// Ballot holds one voter's ranking. Ranks[i] is the rank (1 = favorite) the
// voter assigned to the i-th movie of the current selection.
type Ballot struct {
	Ranks []int
}

// Result is the outcome of a completed tally.
type Result struct {
	WinnerID     int64
	WinnerPoints int
	Points       map[int64]int
	VoterCount   int
}

// Tally computes the Borda-count winner over the movies in order. Each rank r
// on a ballot contributes M - r + 1 points. Validation is all-or-nothing: any
// malformed ballot fails the entire tally and no winner is produced. Ties are
// broken by position in order.
func Tally(order []int64, ballots []Ballot) (Result, error) {
	if len(order) == 0 {
		return Result{}, ErrEmptySelection
	}
	if len(ballots) == 0 {
		return Result{}, ErrNoBallots
	}

	for voter, b := range ballots {
		if err := validateBallot(b, len(order)); err != nil {
			return Result{}, fmt.Errorf("voter %d: %w", voter+1, err)
		}
	}

	size := len(order)
	points := make(map[int64]int, size)
	for _, b := range ballots {
		for i, rank := range b.Ranks {
			points[order[i]] += size - rank + 1
		}
	}

	winnerID := order[0]
	winnerPoints := points[winnerID]
	for _, movieID := range order[1:] {
		if points[movieID] > winnerPoints {
			winnerID = movieID
			winnerPoints = points[movieID]
		}
	}

	return Result{
		WinnerID:     winnerID,
		WinnerPoints: winnerPoints,
		Points:       points,
		VoterCount:   len(ballots),
	}, nil
}

// validateBallot checks that the ballot assigns each rank 1..size exactly once.
func validateBallot(b Ballot, size int) error {
	if len(b.Ranks) != size {
		return fmt.Errorf("%w: %d ranks for %d movies", ErrInvalidBallot, len(b.Ranks), size)
	}
	seen := make([]bool, size+1)
	for _, rank := range b.Ranks {
		if rank < 1 || rank > size {
			return fmt.Errorf("%w: rank %d out of range 1..%d", ErrInvalidBallot, rank, size)
		}
		if seen[rank] {
			return fmt.Errorf("%w: duplicate rank %d", ErrInvalidBallot, rank)
		}
		seen[rank] = true
	}
	return nil
}
