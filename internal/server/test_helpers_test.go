package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/marqueelabs/movienight/internal/catalog"
	"github.com/marqueelabs/movienight/internal/library"
	"gorm.io/gorm"
)

const testCatalogJSON = `[
	{"id": 1, "title": "The Long Voyage", "year": 1998, "genre": "drama", "trailer_url": "https://example.com/t/1"},
	{"id": 2, "title": "Laugh Track", "year": 2004, "genre": "comedy", "trailer_url": "https://example.com/t/2"},
	{"id": 3, "title": "Night Circuit", "year": 2011, "genre": "thriller", "trailer_url": "https://example.com/t/3"},
	{"id": 4, "title": "Second Wind", "year": 2016, "genre": "drama", "trailer_url": "https://example.com/t/4"}
]`

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("tally-%d", g.next), nil
}

func newTestHandler(t *testing.T) (http.Handler, *library.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&library.WatchedRecord{},
		&library.RemovedRecord{},
		&library.SelectionRecord{},
		&library.TallyRecord{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := library.NewService(library.ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to build library service: %v", err)
	}

	cat, err := catalog.Parse([]byte(testCatalogJSON))
	if err != nil {
		t.Fatalf("failed to parse test catalog: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Library: service,
		Catalog: cat,
		Rand:    rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return handler, service
}

func performJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func fetchState(t *testing.T, handler http.Handler) map[string]any {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodGet, "/api/state", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("state request failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeBody(t, recorder)
}

func idList(t *testing.T, value any) []int64 {
	t.Helper()
	raw, ok := value.([]any)
	if !ok {
		t.Fatalf("expected JSON array, got %T", value)
	}
	ids := make([]int64, 0, len(raw))
	for _, entry := range raw {
		number, ok := entry.(float64)
		if !ok {
			t.Fatalf("expected numeric id, got %T", entry)
		}
		ids = append(ids, int64(number))
	}
	return ids
}
