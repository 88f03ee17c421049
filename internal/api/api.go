// Package api exposes the simulation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/bbernstein/lacylights-motion/internal/description"
	"github.com/bbernstein/lacylights-motion/internal/fixture"
	"github.com/bbernstein/lacylights-motion/internal/services/dmx"
	"github.com/bbernstein/lacylights-motion/internal/services/patch"
	"github.com/bbernstein/lacylights-motion/internal/services/pubsub"
	"github.com/bbernstein/lacylights-motion/internal/services/simulation"
)

const maxBodyBytes = 1 << 20

// Engine is the simulation as seen by the API.
type Engine interface {
	patch.Engine
	Snapshot() []fixture.State
	FixtureState(id string) (fixture.State, error)
	FixtureUniverse(id string) (universe, address int, err error)
	FixtureCount() int
	IsRunning() bool
}

// Input accepts locally injected DMX values.
type Input interface {
	SetChannels(universe int, values map[int]byte) error
	GetUniverse(universe int) []int
	Stats() dmx.Stats
}

// Subscribers reports how many clients listen on a topic.
type Subscribers interface {
	SubscriberCount(topic pubsub.Topic) int
}

// ProfileStore lists stored profiles.
type ProfileStore interface {
	FindAll(ctx context.Context) ([]models.FixtureProfile, error)
	Count(ctx context.Context) (int64, error)
	CountPatches(ctx context.Context, profileID string) (int64, error)
}

// Deps holds the services behind the routes.
type Deps struct {
	Engine   Engine
	Input    Input
	Profiles ProfileStore
	Importer *patch.Importer
	Loader   *patch.Loader
	Stream   http.Handler
	Clients  Subscribers
	Version  string
}

// Options configures the router.
type Options struct {
	CORSOrigin string
	Debug      bool
}

type server struct {
	deps    Deps
	started time.Time
}

// NewRouter builds the HTTP router.
func NewRouter(deps Deps, opts Options) http.Handler {
	s := &server{deps: deps, started: time.Now()}

	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// CORS
	origins := []string{"http://localhost:3000", "http://localhost:4000"}
	if opts.CORSOrigin != "" {
		origins = append([]string{opts.CORSOrigin}, origins...)
	}
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            opts.Debug,
	})
	router.Use(corsMiddleware.Handler)

	// Websocket streams outlive the request timeout
	if deps.Stream != nil {
		router.Handle("/ws", deps.Stream)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.health)

		r.Get("/fixtures", s.listFixtures)
		r.Get("/fixtures/{id}", s.getFixture)
		r.Post("/fixtures/{id}/dmx", s.injectDMX)

		r.Get("/universes/{universe}", s.getUniverse)

		r.Get("/profiles", s.listProfiles)
		r.Post("/profiles", s.importProfile)
		r.Delete("/profiles/{id}", s.deleteProfile)

		r.Post("/patches", s.createPatch)
		r.Put("/patches/{id}", s.updatePatch)
		r.Delete("/patches/{id}", s.deletePatch)
	})

	return router
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.deps.Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"fixtures":  s.deps.Engine.FixtureCount(),
		"running":   s.deps.Engine.IsRunning(),
	}
	if s.deps.Profiles != nil {
		if count, err := s.deps.Profiles.Count(r.Context()); err == nil {
			body["profiles"] = count
		}
	}
	if s.deps.Input != nil {
		body["artnet"] = s.deps.Input.Stats()
	}
	if s.deps.Clients != nil {
		body["streamClients"] = s.deps.Clients.SubscriberCount(pubsub.TopicFixtureState)
	}
	if s.deps.Importer != nil {
		status, err := s.deps.Importer.LoadImportStatus(r.Context())
		if err != nil {
			log.Printf("⚠️  Failed to load import status: %v", err)
		} else if status != nil {
			body["lastImport"] = status
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) listFixtures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

func (s *server) getFixture(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Engine.FixtureState(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// dmxRequest sets channels relative to the fixture start address: either a
// map of 1-based offsets to values, or a list of values starting at offset 1.
type dmxRequest struct {
	Channels map[string]int `json:"channels"`
	Values   []int          `json:"values"`
}

func (s *server) injectDMX(w http.ResponseWriter, r *http.Request) {
	if s.deps.Input == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "DMX input is not available")
		return
	}

	id := chi.URLParam(r, "id")
	universe, address, err := s.deps.Engine.FixtureUniverse(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dmxRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	// Validate the whole request before anything is written
	offsets := make(map[int]int, len(req.Channels)+len(req.Values))
	for key, value := range req.Channels {
		offset, err := strconv.Atoi(key)
		if err != nil || offset < 1 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid channel offset "+strconv.Quote(key))
			return
		}
		offsets[offset] = value
	}
	for i, value := range req.Values {
		offsets[i+1] = value
	}
	if len(offsets) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "no channel values given")
		return
	}

	values := make(map[int]byte, len(offsets))
	for offset, value := range offsets {
		if value < 0 || value > 255 {
			writeErrorMessage(w, http.StatusBadRequest, "channel values must be between 0 and 255")
			return
		}
		channel := address + offset - 1
		if channel > dmx.UniverseSize {
			writeErrorMessage(w, http.StatusBadRequest,
				"channel offset "+strconv.Itoa(offset)+" is outside universe "+strconv.Itoa(universe))
			return
		}
		values[channel] = byte(value)
	}

	// One update, so multi-byte channels never show a half-written value
	if err := s.deps.Input.SetChannels(universe, values); err != nil {
		writeError(w, err)
		return
	}

	state, err := s.deps.Engine.FixtureState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *server) getUniverse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Input == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "DMX input is not available")
		return
	}
	universe, err := strconv.Atoi(chi.URLParam(r, "universe"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid universe")
		return
	}
	channels := s.deps.Input.GetUniverse(universe)
	if channels == nil {
		writeErrorMessage(w, http.StatusNotFound, "unknown universe "+strconv.Itoa(universe))
		return
	}
	body := map[string]interface{}{
		"universe": universe,
		"channels": channels,
	}
	if s.deps.Loader != nil {
		patches, err := s.deps.Loader.PatchesInUniverse(r.Context(), universe)
		if err != nil {
			writeError(w, err)
			return
		}
		summaries := make([]patchSummary, 0, len(patches))
		for _, p := range patches {
			summaries = append(summaries, patchSummary{ID: p.ID, Name: p.Name, ProfileID: p.ProfileID, StartChannel: p.StartChannel})
		}
		body["patches"] = summaries
	}
	writeJSON(w, http.StatusOK, body)
}

// patchSummary is a stored patch as listed on its universe.
type patchSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileID    string `json:"profileId"`
	StartChannel int    `json:"startChannel"`
}

// profileSummary omits the stored document.
type profileSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	ModeCount    int    `json:"modeCount"`
	PatchCount   int64  `json:"patchCount"`
}

func summarize(p *models.FixtureProfile) profileSummary {
	return profileSummary{ID: p.ID, Name: p.Name, Manufacturer: p.Manufacturer, ModeCount: p.ModeCount}
}

func (s *server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Profiles.FindAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]profileSummary, 0, len(profiles))
	for i := range profiles {
		summary := summarize(&profiles[i])
		if summary.PatchCount, err = s.deps.Profiles.CountPatches(r.Context(), profiles[i].ID); err != nil {
			writeError(w, err)
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, http.StatusOK, summaries)
}

// importProfile accepts a YAML fixture description as the request body.
func (s *server) importProfile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "failed to read body")
		return
	}
	profile, created, err := s.deps.Importer.ImportBytes(r.Context(), data, "")
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, summarize(profile))
}

func (s *server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Loader.DeleteProfile(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, patch.ErrProfileNotFound) {
		writeErrorMessage(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type patchRequest struct {
	ProfileID     string   `json:"profileId"`
	Mode          string   `json:"mode"`
	Name          string   `json:"name"`
	Universe      int      `json:"universe"`
	StartChannel  int      `json:"startChannel"`
	InvertPan     bool     `json:"invertPan"`
	InvertTilt    bool     `json:"invertTilt"`
	Interpolation *bool    `json:"interpolation"`
	SkipThreshold *float64 `json:"skipThreshold"`
}

func (s *server) createPatch(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePatch(w, r)
	if !ok {
		return
	}
	f, err := s.deps.Loader.CreatePatch(r.Context(), p, s.deps.Engine)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f.Snapshot())
}

// updatePatch replaces every field of a patch and restarts its fixture.
func (s *server) updatePatch(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePatch(w, r)
	if !ok {
		return
	}
	p.ID = chi.URLParam(r, "id")
	f, err := s.deps.Loader.UpdatePatch(r.Context(), p, s.deps.Engine)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f.Snapshot())
}

func decodePatch(w http.ResponseWriter, r *http.Request) (*models.FixturePatch, bool) {
	var req patchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, false
	}
	return &models.FixturePatch{
		Name:          req.Name,
		ProfileID:     req.ProfileID,
		Mode:          req.Mode,
		Universe:      req.Universe,
		StartChannel:  req.StartChannel,
		InvertPan:     req.InvertPan,
		InvertTilt:    req.InvertTilt,
		Interpolation: req.Interpolation == nil || *req.Interpolation,
		SkipThreshold: req.SkipThreshold,
	}, true
}

func (s *server) deletePatch(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Loader.DeletePatch(r.Context(), chi.URLParam(r, "id"), s.deps.Engine); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simulation.ErrFixtureNotFound), errors.Is(err, patch.ErrPatchNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, simulation.ErrDuplicateFixture), errors.Is(err, patch.ErrProfileInUse):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, patch.ErrProfileNotFound),
		errors.Is(err, patch.ErrModeNotFound),
		errors.Is(err, fixture.ErrInvalidPatch),
		errors.Is(err, description.ErrInvalidDescription),
		errors.Is(err, dmx.ErrUnknownUniverse),
		errors.Is(err, dmx.ErrChannelOutOfRange):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("⚠️  Request failed: %v", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
