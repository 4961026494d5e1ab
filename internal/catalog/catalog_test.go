package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalogJSON = `[
	{"id": 1, "title": "The Long Voyage", "year": 1998, "genre": "drama", "trailer_url": "https://example.com/t/1"},
	{"id": 2, "title": "Laugh Track", "year": 2004, "genre": "comedy", "trailer_url": "https://example.com/t/2"},
	{"id": 3, "title": "Night Circuit", "year": 2011, "genre": "thriller", "trailer_url": ""}
]`

func TestLoadReadsCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(sampleCatalogJSON), 0o600); err != nil {
		t.Fatalf("failed to write catalog file: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cat.Len() != 3 {
		t.Fatalf("expected 3 movies, got %d", cat.Len())
	}
	movie, ok := cat.Lookup(2)
	if !ok {
		t.Fatalf("expected movie 2 to exist")
	}
	if movie.Title != "Laugh Track" || movie.Genre != "comedy" {
		t.Fatalf("unexpected movie: %#v", movie)
	}
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	raw := `[{"id": 7, "title": "A"}, {"id": 7, "title": "B"}]`
	if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestParseRejectsNonPositiveID(t *testing.T) {
	raw := `[{"id": 0, "title": "Zero"}]`
	if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestParseRejectsUntitledMovie(t *testing.T) {
	raw := `[{"id": 4, "title": "  "}]`
	if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestMoviesReturnsCopy(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalogJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	movies := cat.Movies()
	movies[0].Title = "mutated"
	reloaded, ok := cat.Lookup(1)
	if !ok || reloaded.Title != "The Long Voyage" {
		t.Fatalf("catalog should not observe caller mutation, got %#v", reloaded)
	}
}

func TestLookupMissingID(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalogJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cat.Lookup(99); ok {
		t.Fatalf("expected lookup miss for id 99")
	}
}
