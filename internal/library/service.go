package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "library.service.new"
	opState            = "library.state"
	opReplaceSelection = "library.replace_selection"
	opMarkWatched      = "library.mark_watched"
	opUnwatch          = "library.unwatch"
	opRemove           = "library.remove"
	opRestore          = "library.restore"
	opRecordTally      = "library.record_tally"
	opTallyHistory     = "library.tally_history"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for tally history rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the library store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the server-authoritative store of watched, removed and
// current-selection records. Each mutation keeps the store invariant: a movie
// id lives in at most one of {watched, removed}, and the selection never
// overlaps the removed set.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the library store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// State loads the full store snapshot. Selection rows come back in draw order.
func (s *Service) State(ctx context.Context) (State, error) {
	if s.db == nil {
		s.logError(opState, "missing_database", errMissingDatabase)
		return State{}, newServiceError(opState, "missing_database", errMissingDatabase)
	}

	state := State{
		Watched:   []WatchedRecord{},
		Removed:   []RemovedRecord{},
		Selection: []SelectionRecord{},
	}

	if err := s.db.WithContext(ctx).Order("movie_id").Find(&state.Watched).Error; err != nil {
		s.logError(opState, "watched_query_failed", err)
		return State{}, newServiceError(opState, "watched_query_failed", err)
	}
	if err := s.db.WithContext(ctx).Order("movie_id").Find(&state.Removed).Error; err != nil {
		s.logError(opState, "removed_query_failed", err)
		return State{}, newServiceError(opState, "removed_query_failed", err)
	}
	if err := s.db.WithContext(ctx).Order("position").Find(&state.Selection).Error; err != nil {
		s.logError(opState, "selection_query_failed", err)
		return State{}, newServiceError(opState, "selection_query_failed", err)
	}

	return state, nil
}

// ReplaceSelection swaps the entire current selection for the provided movie
// ids, preserving their order. The delete and multi-row insert run in one
// transaction so clients never observe a half-replaced selection.
func (s *Service) ReplaceSelection(ctx context.Context, movieIDs []MovieID) error {
	if s.db == nil {
		s.logError(opReplaceSelection, "missing_database", errMissingDatabase)
		return newServiceError(opReplaceSelection, "missing_database", errMissingDatabase)
	}

	selectedAt := s.clock().UTC().Unix()
	records := make([]SelectionRecord, 0, len(movieIDs))
	for position, movieID := range movieIDs {
		records = append(records, SelectionRecord{
			MovieID:           movieID.Int64(),
			Position:          position,
			SelectedAtSeconds: selectedAt,
		})
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SelectionRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
	if txErr != nil {
		s.logError(opReplaceSelection, "replace_failed", txErr, zap.Int("count", len(records)))
		return newServiceError(opReplaceSelection, "replace_failed", txErr)
	}

	return nil
}

// MarkWatched upserts the movie into the watched set, clearing it from the
// selection and removed sets first. Repeating the call overwrites the score.
func (s *Service) MarkWatched(ctx context.Context, movieID MovieID, score *int) error {
	if s.db == nil {
		s.logError(opMarkWatched, "missing_database", errMissingDatabase)
		return newServiceError(opMarkWatched, "missing_database", errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	if err := db.Where("movie_id = ?", movieID.Int64()).Delete(&SelectionRecord{}).Error; err != nil {
		s.logError(opMarkWatched, "selection_delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opMarkWatched, "selection_delete_failed", err)
	}
	if err := db.Where("movie_id = ?", movieID.Int64()).Delete(&RemovedRecord{}).Error; err != nil {
		s.logError(opMarkWatched, "removed_delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opMarkWatched, "removed_delete_failed", err)
	}

	record := WatchedRecord{
		MovieID:          movieID.Int64(),
		Score:            score,
		WatchedAtSeconds: s.clock().UTC().Unix(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "movie_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "watched_at_s"}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opMarkWatched, "upsert_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opMarkWatched, "upsert_failed", err)
	}

	return nil
}

// Unwatch deletes the watched record for the movie. Unknown ids are a no-op.
func (s *Service) Unwatch(ctx context.Context, movieID MovieID) error {
	if s.db == nil {
		s.logError(opUnwatch, "missing_database", errMissingDatabase)
		return newServiceError(opUnwatch, "missing_database", errMissingDatabase)
	}

	err := s.db.WithContext(ctx).Where("movie_id = ?", movieID.Int64()).Delete(&WatchedRecord{}).Error
	if err != nil {
		s.logError(opUnwatch, "delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opUnwatch, "delete_failed", err)
	}

	return nil
}

// Remove takes the movie out of consideration, clearing it from the selection
// and watched sets first. Repeating the call is a no-op.
func (s *Service) Remove(ctx context.Context, movieID MovieID) error {
	if s.db == nil {
		s.logError(opRemove, "missing_database", errMissingDatabase)
		return newServiceError(opRemove, "missing_database", errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	if err := db.Where("movie_id = ?", movieID.Int64()).Delete(&SelectionRecord{}).Error; err != nil {
		s.logError(opRemove, "selection_delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opRemove, "selection_delete_failed", err)
	}
	if err := db.Where("movie_id = ?", movieID.Int64()).Delete(&WatchedRecord{}).Error; err != nil {
		s.logError(opRemove, "watched_delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opRemove, "watched_delete_failed", err)
	}

	record := RemovedRecord{
		MovieID:          movieID.Int64(),
		RemovedAtSeconds: s.clock().UTC().Unix(),
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
	if err != nil {
		s.logError(opRemove, "insert_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opRemove, "insert_failed", err)
	}

	return nil
}

// Restore deletes the removed record for the movie. Unknown ids are a no-op.
func (s *Service) Restore(ctx context.Context, movieID MovieID) error {
	if s.db == nil {
		s.logError(opRestore, "missing_database", errMissingDatabase)
		return newServiceError(opRestore, "missing_database", errMissingDatabase)
	}

	err := s.db.WithContext(ctx).Where("movie_id = ?", movieID.Int64()).Delete(&RemovedRecord{}).Error
	if err != nil {
		s.logError(opRestore, "delete_failed", err, zap.Int64("movie_id", movieID.Int64()))
		return newServiceError(opRestore, "delete_failed", err)
	}

	return nil
}

// RecordTally appends one tally-history row and returns its identifier.
func (s *Service) RecordTally(ctx context.Context, winner MovieID, winnerPoints, voterCount int) (string, error) {
	if s.db == nil {
		s.logError(opRecordTally, "missing_database", errMissingDatabase)
		return "", newServiceError(opRecordTally, "missing_database", errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(opRecordTally, "missing_id_provider", errMissingIDProvider)
		return "", newServiceError(opRecordTally, "missing_id_provider", errMissingIDProvider)
	}

	tallyID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRecordTally, "id_generation_failed", err)
		return "", newServiceError(opRecordTally, "id_generation_failed", err)
	}

	record := TallyRecord{
		TallyID:           tallyID,
		WinnerMovieID:     winner.Int64(),
		WinnerPoints:      winnerPoints,
		VoterCount:        voterCount,
		ComputedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opRecordTally, "insert_failed", err, zap.Int64("winner_movie_id", winner.Int64()))
		return "", newServiceError(opRecordTally, "insert_failed", err)
	}

	return tallyID, nil
}

// TallyHistory returns past tally records, most recent first.
func (s *Service) TallyHistory(ctx context.Context) ([]TallyRecord, error) {
	if s.db == nil {
		s.logError(opTallyHistory, "missing_database", errMissingDatabase)
		return nil, newServiceError(opTallyHistory, "missing_database", errMissingDatabase)
	}

	records := []TallyRecord{}
	err := s.db.WithContext(ctx).Order("computed_at_s DESC, tally_id DESC").Find(&records).Error
	if err != nil {
		s.logError(opTallyHistory, "query_failed", err)
		return nil, newServiceError(opTallyHistory, "query_failed", err)
	}

	return records, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("library service error", attrs...)
}
