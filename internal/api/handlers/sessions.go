// Package handlers contains the HTTP handlers of the chargemap gateway.
//
// This file implements the map session API:
//   - Session lifecycle (POST /v1/sessions, GET/DELETE /v1/sessions/{id})
//   - Query parameters (PUT viewport, PUT filters, POST refresh)
//   - Selection (click, select, switch, unselect)
//   - Navigation chooser and directions links
//
// Mutating endpoints that trigger a fetch accept ?wait=true, which holds the
// response until the fetch resolves or the request deadline passes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"chargemap/internal/core"
	"chargemap/internal/geo"
	"chargemap/internal/navigation"
	"chargemap/internal/session"
	"chargemap/internal/store"
	"chargemap/internal/types"
)

// SessionService is the session registry contract used by the handler.
// session.Manager satisfies it.
type SessionService interface {
	Create(ctx context.Context, aspect float64) (*session.Session, <-chan struct{}, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Persist(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, id string) error
}

// SessionHandler maps HTTP requests onto map sessions.
type SessionHandler struct {
	service   SessionService
	validator *core.Validator
	logger    *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc SessionService, val *core.Validator, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &SessionHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the session endpoints. It is meant to be used as a
// core.Server V1RouteRegistrar.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.HandleCreate)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleDelete)
		r.Put("/viewport", h.HandleUpdateViewport)
		r.Put("/filters", h.HandleUpdateFilters)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/selection/click", h.HandleClick)
		r.Post("/selection/select", h.HandleSelect)
		r.Post("/selection/switch", h.HandleSwitch)
		r.Post("/selection/unselect", h.HandleUnselect)
		r.Put("/navigation", h.HandleSetNavigation)
		r.Get("/navigation/links", h.HandleNavigationLinks)
	})
}

// --- Request / response DTOs ---

// CreateSessionRequest is the body of POST /v1/sessions. An empty body uses
// an aspect ratio of 1.
type CreateSessionRequest struct {
	AspectRatio float64 `json:"aspect_ratio" validate:"aspect_ratio"`
}

// ViewportRequest carries either map bounds or a ready-made region.
type ViewportRequest struct {
	North  *float64      `json:"north" validate:"omitempty,latitude"`
	South  *float64      `json:"south" validate:"omitempty,latitude"`
	East   *float64      `json:"east" validate:"omitempty,longitude"`
	West   *float64      `json:"west" validate:"omitempty,longitude"`
	Region *types.Region `json:"region"`
}

// shape checks that exactly one of the two forms was sent.
func (v ViewportRequest) shape() error {
	bounds := 0
	for _, b := range []*float64{v.North, v.South, v.East, v.West} {
		if b != nil {
			bounds++
		}
	}
	switch {
	case v.Region != nil && bounds > 0:
		return types.NewAppError(types.ErrCodeValidationInvalidRegion, "send either bounds or region, not both", nil)
	case v.Region == nil && bounds < 4:
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"north, south, east and west are all required when region is absent", nil)
	}
	return nil
}

// Warnings flags bounds that cross the antimeridian. They are accepted but
// the containment check does not wrap longitudes, so the resulting region
// spans the wrong way around the globe.
func (v ViewportRequest) Warnings() []string {
	if v.East != nil && v.West != nil && *v.East < *v.West {
		return []string{"viewport crosses the antimeridian; longitudes are not wrapped"}
	}
	return nil
}

func (v ViewportRequest) region() types.Region {
	if v.Region != nil {
		return *v.Region
	}
	return geo.RegionFromBounds(*v.North, *v.South, *v.East, *v.West)
}

// FiltersRequest is the body of PUT /v1/sessions/{id}/filters.
type FiltersRequest struct {
	Filters types.Filters `json:"filters"`
}

// SiteRequest names a charge site in the current list.
type SiteRequest struct {
	SiteID *int64 `json:"site_id" validate:"required"`
}

// NavigationRequest toggles the navigation chooser.
type NavigationRequest struct {
	Show *bool `json:"show" validate:"required"`
}

// SessionResponse is a session snapshot.
type SessionResponse struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	State     store.State `json:"state"`
}

// ViewportResponse reports whether the viewport change triggered a fetch.
// Ignored is set when the map was frozen and the move was dropped.
type ViewportResponse struct {
	Requeried bool            `json:"requeried"`
	Ignored   string          `json:"ignored,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Session   SessionResponse `json:"session"`
}

// ClickResponse reports which transition a marker click applied.
type ClickResponse struct {
	Action  session.ClickAction `json:"action"`
	Session SessionResponse     `json:"session"`
}

// LinksResponse lists directions links for the selected site.
type LinksResponse struct {
	SiteID int64             `json:"site_id"`
	Links  []navigation.Link `json:"links"`
}

// --- Handlers ---

// HandleCreate handles POST /v1/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req := CreateSessionRequest{AspectRatio: 1}
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	s, done, err := h.service.Create(r.Context(), req.AspectRatio)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.maybeWait(r, done)

	core.Data(w, r, http.StatusCreated, toSessionResponse(s))
}

// HandleGet handles GET /v1/sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if wantWait(r) {
		h.wait(r, s.Wait(r.Context()))
	}
	core.Data(w, r, http.StatusOK, toSessionResponse(s))
}

// HandleDelete handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateViewport handles PUT /v1/sessions/{id}/viewport.
func (h *SessionHandler) HandleUpdateViewport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ViewportRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := req.shape(); err != nil {
		core.Error(w, r, err)
		return
	}
	result := h.validator.ValidateStructWithWarnings(req)
	if err := result.Err(); err != nil {
		core.Error(w, r, err)
		return
	}
	region := req.region()
	if err := region.Validate(); err != nil {
		core.Error(w, r, err)
		return
	}

	requeried, ignored, done := s.UpdateViewport(r.Context(), region)
	if requeried {
		h.persist(r, s)
	}
	h.maybeWait(r, done)

	warnings := result.Warnings
	if msg := viewportLockWarning(ignored); msg != "" {
		warnings = append(warnings, msg)
	}
	core.Data(w, r, http.StatusOK, ViewportResponse{
		Requeried: requeried,
		Ignored:   string(ignored),
		Warnings:  warnings,
		Session:   toSessionResponse(s),
	})
}

func viewportLockWarning(lock store.ViewportLock) string {
	switch lock {
	case store.LockedByNavigation:
		return "viewport ignored while the navigation chooser is open"
	case store.LockedByFetchError:
		return "viewport ignored while the last fetch failed; refresh to retry"
	default:
		return ""
	}
}

// HandleUpdateFilters handles PUT /v1/sessions/{id}/filters.
func (h *SessionHandler) HandleUpdateFilters(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req FiltersRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	done := s.UpdateFilters(r.Context(), req.Filters)
	h.persist(r, s)
	h.maybeWait(r, done)

	core.Data(w, r, http.StatusOK, toSessionResponse(s))
}

// HandleRefresh handles POST /v1/sessions/{id}/refresh.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	done := s.Refresh(r.Context())

	status := http.StatusAccepted
	if wantWait(r) {
		h.wait(r, session.WaitFor(r.Context(), done))
		status = http.StatusOK
	}
	core.Data(w, r, status, toSessionResponse(s))
}

// HandleClick handles POST /v1/sessions/{id}/selection/click.
func (h *SessionHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	s, id, ok := h.siteRequest(w, r)
	if !ok {
		return
	}
	action, err := s.ClickSite(id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, ClickResponse{Action: action, Session: toSessionResponse(s)})
}

// HandleSelect handles POST /v1/sessions/{id}/selection/select.
func (h *SessionHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	h.applySite(w, r, (*session.Session).SelectSite)
}

// HandleSwitch handles POST /v1/sessions/{id}/selection/switch.
func (h *SessionHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	h.applySite(w, r, (*session.Session).SwitchSite)
}

// HandleUnselect handles POST /v1/sessions/{id}/selection/unselect.
func (h *SessionHandler) HandleUnselect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Unselect()
	core.Data(w, r, http.StatusOK, toSessionResponse(s))
}

// HandleSetNavigation handles PUT /v1/sessions/{id}/navigation.
func (h *SessionHandler) HandleSetNavigation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req NavigationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	s.ShowNavigation(*req.Show)
	core.Data(w, r, http.StatusOK, toSessionResponse(s))
}

// HandleNavigationLinks handles GET /v1/sessions/{id}/navigation/links.
// ?app=waze narrows the result to one app.
func (h *SessionHandler) HandleNavigationLinks(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	links, err := s.NavigationLinks()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	siteID, _ := s.Snapshot().Selection.SiteID()

	if app := r.URL.Query().Get("app"); app != "" {
		links = filterLinks(links, navigation.App(app))
		if len(links) == 0 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
				"unsupported navigation app", nil, map[string]any{"app": app, "supported": navigation.Apps}))
			return
		}
	}

	core.Data(w, r, http.StatusOK, LinksResponse{SiteID: siteID, Links: links})
}

// --- helpers ---

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) siteRequest(w http.ResponseWriter, r *http.Request) (*session.Session, int64, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, 0, false
	}

	var req SiteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return nil, 0, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return nil, 0, false
	}
	return s, *req.SiteID, true
}

func (h *SessionHandler) applySite(w http.ResponseWriter, r *http.Request, apply func(*session.Session, int64) error) {
	s, id, ok := h.siteRequest(w, r)
	if !ok {
		return
	}
	if err := apply(s, id); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, toSessionResponse(s))
}

// persist saves the committed parameters. The in-memory session stays
// authoritative, so a failed save is logged rather than returned.
func (h *SessionHandler) persist(r *http.Request, s *session.Session) {
	if err := h.service.Persist(r.Context(), s); err != nil {
		types.LoggerFromContext(r.Context(), h.logger).WarnContext(r.Context(), "session save failed",
			"session_id", s.ID(), "error", err)
	}
}

func (h *SessionHandler) maybeWait(r *http.Request, done <-chan struct{}) {
	if wantWait(r) {
		h.wait(r, session.WaitFor(r.Context(), done))
	}
}

// wait logs an abandoned wait; the response then carries the pending state.
func (h *SessionHandler) wait(r *http.Request, err error) {
	if err != nil {
		types.LoggerFromContext(r.Context(), h.logger).DebugContext(r.Context(), "stopped waiting for fetch", "error", err)
	}
}

func wantWait(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("wait"))
	return err == nil && v
}

func filterLinks(links []navigation.Link, app navigation.App) []navigation.Link {
	for _, l := range links {
		if l.App == app {
			return []navigation.Link{l}
		}
	}
	return nil
}

func toSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		State:     s.Snapshot(),
	}
}
