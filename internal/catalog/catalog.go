package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrInvalidCatalog indicates the catalog file could not be parsed or failed validation.
	ErrInvalidCatalog = errors.New("catalog: invalid catalog")
)

// Movie is an immutable catalog entry. The catalog is external, read-only data;
// the service never mutates it.
type Movie struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	Genre      string `json:"genre"`
	TrailerURL string `json:"trailer_url"`
}

// Catalog holds the loaded movie dataset with id-based lookup.
type Catalog struct {
	movies []Movie
	byID   map[int64]Movie
}

// Load reads the catalog JSON file and validates entries. Duplicate identifiers
// and untitled entries are rejected because every downstream record is keyed by
// movie id.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a Catalog from raw JSON bytes.
func Parse(raw []byte) (*Catalog, error) {
	var movies []Movie
	if err := json.Unmarshal(raw, &movies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	byID := make(map[int64]Movie, len(movies))
	for _, movie := range movies {
		if movie.ID <= 0 {
			return nil, fmt.Errorf("%w: movie id %d is not positive", ErrInvalidCatalog, movie.ID)
		}
		if strings.TrimSpace(movie.Title) == "" {
			return nil, fmt.Errorf("%w: movie %d has no title", ErrInvalidCatalog, movie.ID)
		}
		if _, exists := byID[movie.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate movie id %d", ErrInvalidCatalog, movie.ID)
		}
		byID[movie.ID] = movie
	}

	return &Catalog{movies: movies, byID: byID}, nil
}

// Movies returns all catalog entries in file order.
func (c *Catalog) Movies() []Movie {
	out := make([]Movie, len(c.movies))
	copy(out, c.movies)
	return out
}

// Lookup returns the movie for the given identifier.
func (c *Catalog) Lookup(id int64) (Movie, bool) {
	movie, ok := c.byID[id]
	return movie, ok
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.movies)
}
