// Package picker implements the weighted random candidate draw used to build a
// new current selection for a movie night.
package picker

import (
	"math/rand"

	"github.com/marqueelabs/movienight/internal/catalog"
)

const (
	baseWeight   = 1.0
	scoreDivisor = 10.0
)

// WatchedMovie pairs a previously watched catalog entry with its optional score.
// A nil score means the movie was marked watched without being rated.
type WatchedMovie struct {
	Movie catalog.Movie
	Score *int
}

// Draw picks up to count movies from available without replacement, each pick
// weighted by the household's scored history in the movie's genre. The result
// size is min(count, len(available)); an empty pool yields an empty result.
func Draw(rng *rand.Rand, available []catalog.Movie, watched []WatchedMovie, count int) []catalog.Movie {
	if count <= 0 || len(available) == 0 {
		return nil
	}
	if count > len(available) {
		count = len(available)
	}

	genreWeight := genreWeights(watched)

	pool := make([]catalog.Movie, len(available))
	copy(pool, available)
	weights := make([]float64, len(pool))
	for i, movie := range pool {
		weights[i] = baseWeight
		if w, ok := genreWeight[movie.Genre]; ok {
			weights[i] = w
		}
	}

	picked := make([]catalog.Movie, 0, count)
	for len(picked) < count && len(pool) > 0 {
		index := rouletteIndex(rng, weights)
		picked = append(picked, pool[index])
		pool = append(pool[:index], pool[index+1:]...)
		weights = append(weights[:index], weights[index+1:]...)
	}

	return picked
}

// genreWeights computes the per-genre weight 1 + avg(score)/10 over watched
// movies that carry a score. Unscored watches do not influence weights.
func genreWeights(watched []WatchedMovie) map[string]float64 {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, entry := range watched {
		if entry.Score == nil {
			continue
		}
		sums[entry.Movie.Genre] += *entry.Score
		counts[entry.Movie.Genre]++
	}

	weights := make(map[string]float64, len(sums))
	for genre, sum := range sums {
		average := float64(sum) / float64(counts[genre])
		weights[genre] = baseWeight + average/scoreDivisor
	}
	return weights
}

// rouletteIndex selects one index with probability proportional to its weight.
func rouletteIndex(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, weight := range weights {
		total += weight
	}

	target := rng.Float64() * total
	cumulative := 0.0
	for i, weight := range weights {
		cumulative += weight
		if target < cumulative {
			return i
		}
	}
	return len(weights) - 1
}
