package library

import (
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrate(&WatchedRecord{}, &RemovedRecord{}, &SelectionRecord{}, &TallyRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	return service, db
}

func mustMovieID(t *testing.T, value int64) MovieID {
	t.Helper()
	id, err := NewMovieID(value)
	if err != nil {
		t.Fatalf("unexpected movie id error: %v", err)
	}
	return id
}

func mustMovieIDs(t *testing.T, values ...int64) []MovieID {
	t.Helper()
	ids := make([]MovieID, 0, len(values))
	for _, value := range values {
		ids = append(ids, mustMovieID(t, value))
	}
	return ids
}

func intPtr(value int) *int {
	return &value
}
