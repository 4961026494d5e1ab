package library

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMovieID indicates that a movie identifier is not positive.
	ErrInvalidMovieID = errors.New("library: invalid movie id")
	// ErrInvalidScore indicates a watch score outside the accepted range.
	ErrInvalidScore = errors.New("library: invalid score")
)

const (
	minScore = 1
	maxScore = 10
)

// MovieID represents a validated movie identifier.
type MovieID int64

// NewMovieID validates raw input and returns a MovieID.
func NewMovieID(value int64) (MovieID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMovieID, value)
	}
	return MovieID(value), nil
}

// Int64 exposes the raw identifier value.
func (id MovieID) Int64() int64 {
	return int64(id)
}

// NewScore validates an optional watch score. A nil input passes through
// unchanged and means the movie was watched but not rated.
func NewScore(value *int) (*int, error) {
	if value == nil {
		return nil, nil
	}
	if *value < minScore || *value > maxScore {
		return nil, fmt.Errorf("%w: %d outside %d..%d", ErrInvalidScore, *value, minScore, maxScore)
	}
	score := *value
	return &score, nil
}

// WatchedRecord marks a movie as watched, with an optional household score.
// Re-marking a watched movie overwrites its score and timestamp.
type WatchedRecord struct {
	MovieID          int64 `gorm:"column:movie_id;primaryKey;not null"`
	Score            *int  `gorm:"column:score"`
	WatchedAtSeconds int64 `gorm:"column:watched_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (WatchedRecord) TableName() string {
	return "watched_movies"
}

// RemovedRecord marks a movie as removed from consideration.
type RemovedRecord struct {
	MovieID          int64 `gorm:"column:movie_id;primaryKey;not null"`
	RemovedAtSeconds int64 `gorm:"column:removed_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RemovedRecord) TableName() string {
	return "removed_movies"
}

// SelectionRecord holds one entry of the current selection. Position preserves
// the draw order so ballot ranks line up with the order clients display.
type SelectionRecord struct {
	MovieID           int64 `gorm:"column:movie_id;primaryKey;not null"`
	Position          int   `gorm:"column:position;not null;default:0;index"`
	SelectedAtSeconds int64 `gorm:"column:selected_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SelectionRecord) TableName() string {
	return "current_selection"
}

// TallyRecord is an append-only row describing one completed vote.
type TallyRecord struct {
	TallyID           string `gorm:"column:tally_id;primaryKey;size:190;not null"`
	WinnerMovieID     int64  `gorm:"column:winner_movie_id;not null"`
	WinnerPoints      int    `gorm:"column:winner_points;not null"`
	VoterCount        int    `gorm:"column:voter_count;not null"`
	ComputedAtSeconds int64  `gorm:"column:computed_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (TallyRecord) TableName() string {
	return "tally_history"
}

// State is the full store snapshot handed to clients. Selection entries come
// back ordered by position.
type State struct {
	Watched   []WatchedRecord
	Removed   []RemovedRecord
	Selection []SelectionRecord
}
