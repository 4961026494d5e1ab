package server

import (
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/marqueelabs/movienight/internal/ballot"
	"github.com/marqueelabs/movienight/internal/catalog"
	"github.com/marqueelabs/movienight/internal/library"
	"github.com/marqueelabs/movienight/internal/picker"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 30 * time.Second

var (
	errMissingLibrary = errors.New("library service dependency required")
	errMissingCatalog = errors.New("catalog dependency required")
)

// Dependencies wires the HTTP layer to the store, catalog and event feed.
type Dependencies struct {
	Library    *library.Service
	Catalog    *catalog.Catalog
	Dispatcher *EventDispatcher
	Logger     *zap.Logger
	Rand       *rand.Rand
}

// NewHTTPHandler builds the gin router serving the movie-night API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Library == nil {
		return nil, errMissingLibrary
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewEventDispatcher()
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		library:           deps.Library,
		catalog:           deps.Catalog,
		dispatcher:        dispatcher,
		logger:            logger,
		rng:               rng,
		heartbeatInterval: defaultHeartbeatInterval,
	}

	api := router.Group("/api")
	api.GET("/state", handler.handleState)
	api.GET("/catalog", handler.handleCatalog)
	api.GET("/events", handler.handleEvents)
	api.POST("/selection", handler.handleReplaceSelection)
	api.POST("/selection/draw", handler.handleDrawSelection)
	api.POST("/watched", handler.handleMarkWatched)
	api.DELETE("/watched/:movieId", handler.handleUnwatch)
	api.POST("/removed", handler.handleRemove)
	api.DELETE("/removed/:movieId", handler.handleRestore)
	api.POST("/tally", handler.handleTally)
	api.GET("/tally/history", handler.handleTallyHistory)

	return router, nil
}

type httpHandler struct {
	library           *library.Service
	catalog           *catalog.Catalog
	dispatcher        *EventDispatcher
	logger            *zap.Logger
	rng               *rand.Rand
	randMu            sync.Mutex
	heartbeatInterval time.Duration
}

type watchedEntryPayload struct {
	MovieID int64 `json:"movieId"`
	Score   *int  `json:"score"`
}

type statePayload struct {
	Watched          []watchedEntryPayload `json:"watched"`
	Removed          []int64               `json:"removed"`
	CurrentSelection []int64               `json:"currentSelection"`
}

func (h *httpHandler) handleState(c *gin.Context) {
	state, err := h.library.State(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load state", zap.Error(err))
		h.respondStoreError(c, "state_failed", err)
		return
	}
	c.JSON(http.StatusOK, stateToPayload(state))
}

func (h *httpHandler) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"movies": h.catalog.Movies()})
}

type selectionRequestPayload struct {
	MovieIDs []int64 `json:"movieIds"`
}

func (h *httpHandler) handleReplaceSelection(c *gin.Context) {
	var request selectionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	movieIDs := make([]library.MovieID, 0, len(request.MovieIDs))
	for _, raw := range request.MovieIDs {
		movieID, err := library.NewMovieID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movie_id"})
			return
		}
		movieIDs = append(movieIDs, movieID)
	}

	if err := h.library.ReplaceSelection(c.Request.Context(), movieIDs); err != nil {
		h.logger.Error("failed to replace selection", zap.Error(err))
		h.respondStoreError(c, "selection_failed", err)
		return
	}

	h.publishStateChange(request.MovieIDs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type drawRequestPayload struct {
	Count int `json:"count"`
}

func (h *httpHandler) handleDrawSelection(c *gin.Context) {
	var request drawRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Count <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	state, err := h.library.State(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load state for draw", zap.Error(err))
		h.respondStoreError(c, "draw_failed", err)
		return
	}

	available, watched := h.partitionCatalog(state)

	h.randMu.Lock()
	picked := picker.Draw(h.rng, available, watched, request.Count)
	h.randMu.Unlock()

	movieIDs := make([]library.MovieID, 0, len(picked))
	rawIDs := make([]int64, 0, len(picked))
	for _, movie := range picked {
		movieID, err := library.NewMovieID(movie.ID)
		if err != nil {
			h.logger.Error("catalog movie id failed validation", zap.Int64("movie_id", movie.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "draw_failed"})
			return
		}
		movieIDs = append(movieIDs, movieID)
		rawIDs = append(rawIDs, movie.ID)
	}

	if err := h.library.ReplaceSelection(c.Request.Context(), movieIDs); err != nil {
		h.logger.Error("failed to store drawn selection", zap.Error(err))
		h.respondStoreError(c, "draw_failed", err)
		return
	}

	h.publishStateChange(rawIDs)
	c.JSON(http.StatusOK, gin.H{"success": true, "currentSelection": rawIDs})
}

type watchedRequestPayload struct {
	MovieID int64 `json:"movieId"`
	Score   *int  `json:"score"`
}

func (h *httpHandler) handleMarkWatched(c *gin.Context) {
	var request watchedRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	movieID, err := library.NewMovieID(request.MovieID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movie_id"})
		return
	}
	score, err := library.NewScore(request.Score)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_score"})
		return
	}

	if err := h.library.MarkWatched(c.Request.Context(), movieID, score); err != nil {
		h.logger.Error("failed to mark watched", zap.Int64("movie_id", request.MovieID), zap.Error(err))
		h.respondStoreError(c, "watched_failed", err)
		return
	}

	h.publishStateChange([]int64{request.MovieID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleUnwatch(c *gin.Context) {
	movieID, ok := h.movieIDParam(c)
	if !ok {
		return
	}

	if err := h.library.Unwatch(c.Request.Context(), movieID); err != nil {
		h.logger.Error("failed to unwatch", zap.Int64("movie_id", movieID.Int64()), zap.Error(err))
		h.respondStoreError(c, "unwatch_failed", err)
		return
	}

	h.publishStateChange([]int64{movieID.Int64()})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type removedRequestPayload struct {
	MovieID int64 `json:"movieId"`
}

func (h *httpHandler) handleRemove(c *gin.Context) {
	var request removedRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	movieID, err := library.NewMovieID(request.MovieID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movie_id"})
		return
	}

	if err := h.library.Remove(c.Request.Context(), movieID); err != nil {
		h.logger.Error("failed to remove movie", zap.Int64("movie_id", request.MovieID), zap.Error(err))
		h.respondStoreError(c, "remove_failed", err)
		return
	}

	h.publishStateChange([]int64{request.MovieID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	movieID, ok := h.movieIDParam(c)
	if !ok {
		return
	}

	if err := h.library.Restore(c.Request.Context(), movieID); err != nil {
		h.logger.Error("failed to restore movie", zap.Int64("movie_id", movieID.Int64()), zap.Error(err))
		h.respondStoreError(c, "restore_failed", err)
		return
	}

	h.publishStateChange([]int64{movieID.Int64()})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type ballotPayload struct {
	Ranks []int `json:"ranks"`
}

type tallyRequestPayload struct {
	Ballots []ballotPayload `json:"ballots"`
}

// handleTally runs the Borda count over the current selection. On success the
// winner is marked watched without a score, the selection is cleared and a
// history row is appended. Invalid ballots leave the store untouched.
func (h *httpHandler) handleTally(c *gin.Context) {
	var request tallyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Ballots) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	state, err := h.library.State(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load state for tally", zap.Error(err))
		h.respondStoreError(c, "tally_failed", err)
		return
	}

	order := make([]int64, 0, len(state.Selection))
	for _, record := range state.Selection {
		order = append(order, record.MovieID)
	}

	ballots := make([]ballot.Ballot, 0, len(request.Ballots))
	for _, payload := range request.Ballots {
		ballots = append(ballots, ballot.Ballot{Ranks: payload.Ranks})
	}

	result, err := ballot.Tally(order, ballots)
	if err != nil {
		switch {
		case errors.Is(err, ballot.ErrEmptySelection):
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_selection"})
		case errors.Is(err, ballot.ErrInvalidBallot):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_ballot"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		}
		return
	}

	winnerID, err := library.NewMovieID(result.WinnerID)
	if err != nil {
		h.logger.Error("tally produced invalid winner id", zap.Int64("movie_id", result.WinnerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tally_failed"})
		return
	}

	if err := h.library.MarkWatched(c.Request.Context(), winnerID, nil); err != nil {
		h.logger.Error("failed to persist tally winner", zap.Int64("movie_id", result.WinnerID), zap.Error(err))
		h.respondStoreError(c, "tally_failed", err)
		return
	}
	if err := h.library.ReplaceSelection(c.Request.Context(), nil); err != nil {
		h.logger.Error("failed to clear selection after tally", zap.Error(err))
		h.respondStoreError(c, "tally_failed", err)
		return
	}

	tallyID, err := h.library.RecordTally(c.Request.Context(), winnerID, result.WinnerPoints, result.VoterCount)
	if err != nil {
		h.logger.Error("failed to record tally", zap.Error(err))
		h.respondStoreError(c, "tally_failed", err)
		return
	}

	h.publishStateChange(order)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"tallyId":      tallyID,
		"winnerId":     result.WinnerID,
		"winnerPoints": result.WinnerPoints,
		"voterCount":   result.VoterCount,
	})
}

type tallyHistoryEntryPayload struct {
	TallyID           string `json:"tallyId"`
	WinnerMovieID     int64  `json:"winnerId"`
	WinnerPoints      int    `json:"winnerPoints"`
	VoterCount        int    `json:"voterCount"`
	ComputedAtSeconds int64  `json:"computedAt"`
}

func (h *httpHandler) handleTallyHistory(c *gin.Context) {
	records, err := h.library.TallyHistory(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load tally history", zap.Error(err))
		h.respondStoreError(c, "history_failed", err)
		return
	}

	history := make([]tallyHistoryEntryPayload, 0, len(records))
	for _, record := range records {
		history = append(history, tallyHistoryEntryPayload{
			TallyID:           record.TallyID,
			WinnerMovieID:     record.WinnerMovieID,
			WinnerPoints:      record.WinnerPoints,
			VoterCount:        record.VoterCount,
			ComputedAtSeconds: record.ComputedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cancel := h.dispatcher.Subscribe(c.Request.Context())
	defer cancel()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Writer.Header().Set("Cache-Control", "no-store")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, gin.H{
				"movieIds":  event.MovieIDs,
				"timestamp": event.Timestamp.UTC().Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// partitionCatalog splits the catalog into the available draw pool and the
// scored watch history. Catalog entries marked watched or removed are not
// available; store rows without a catalog entry are ignored.
func (h *httpHandler) partitionCatalog(state library.State) ([]catalog.Movie, []picker.WatchedMovie) {
	watchedByID := make(map[int64]library.WatchedRecord, len(state.Watched))
	for _, record := range state.Watched {
		watchedByID[record.MovieID] = record
	}
	removedIDs := make(map[int64]bool, len(state.Removed))
	for _, record := range state.Removed {
		removedIDs[record.MovieID] = true
	}

	available := make([]catalog.Movie, 0, h.catalog.Len())
	watched := make([]picker.WatchedMovie, 0, len(state.Watched))
	for _, movie := range h.catalog.Movies() {
		if record, ok := watchedByID[movie.ID]; ok {
			watched = append(watched, picker.WatchedMovie{Movie: movie, Score: record.Score})
			continue
		}
		if removedIDs[movie.ID] {
			continue
		}
		available = append(available, movie)
	}

	return available, watched
}

func (h *httpHandler) movieIDParam(c *gin.Context) (library.MovieID, bool) {
	raw, err := strconv.ParseInt(c.Param("movieId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movie_id"})
		return 0, false
	}
	movieID, err := library.NewMovieID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movie_id"})
		return 0, false
	}
	return movieID, true
}

func (h *httpHandler) publishStateChange(movieIDs []int64) {
	if h.dispatcher == nil {
		return
	}
	h.dispatcher.Publish(StateEvent{
		EventType: EventStateChanged,
		MovieIDs:  movieIDs,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) respondStoreError(c *gin.Context, message string, err error) {
	payload := gin.H{"error": message}
	var svcErr *library.ServiceError
	if errors.As(err, &svcErr) {
		payload["code"] = svcErr.Code()
	}
	c.JSON(http.StatusInternalServerError, payload)
}

func stateToPayload(state library.State) statePayload {
	payload := statePayload{
		Watched:          make([]watchedEntryPayload, 0, len(state.Watched)),
		Removed:          make([]int64, 0, len(state.Removed)),
		CurrentSelection: make([]int64, 0, len(state.Selection)),
	}
	for _, record := range state.Watched {
		payload.Watched = append(payload.Watched, watchedEntryPayload{
			MovieID: record.MovieID,
			Score:   record.Score,
		})
	}
	for _, record := range state.Removed {
		payload.Removed = append(payload.Removed, record.MovieID)
	}
	for _, record := range state.Selection {
		payload.CurrentSelection = append(payload.CurrentSelection, record.MovieID)
	}
	return payload
}
