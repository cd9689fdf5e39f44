package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargemap/internal/core"
	"chargemap/internal/session"
	"chargemap/internal/store"
	"chargemap/internal/types"
)

// --- Test doubles ---

// stubFetcher returns a fixed site list and records every query.
type stubFetcher struct {
	mu    sync.Mutex
	sites []types.ChargeSite
	err   error
	calls []types.Filters
}

func (f *stubFetcher) FetchChargeSites(_ context.Context, _ types.Region, filters types.Filters) ([]types.ChargeSite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filters)
	return f.sites, f.err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// mockSessionService overrides individual SessionService methods and falls
// back to a real manager for the rest.
type mockSessionService struct {
	SessionService
	GetFunc     func(ctx context.Context, id string) (*session.Session, error)
	PersistFunc func(ctx context.Context, s *session.Session) error
}

func (m *mockSessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.SessionService.Get(ctx, id)
}

func (m *mockSessionService) Persist(ctx context.Context, s *session.Session) error {
	if m.PersistFunc != nil {
		return m.PersistFunc(ctx, s)
	}
	return m.SessionService.Persist(ctx, s)
}

var testSites = []types.ChargeSite{
	{ID: 1, UserID: 10, Latitude: 45.5, Longitude: -122.6, RateOfCharge: 7.2},
	{ID: 2, UserID: 11, Latitude: 45.6, Longitude: -122.7, PrivateStatus: true},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(f *stubFetcher) *session.Manager {
	return session.NewManager(session.ManagerConfig{}, f, nil, nil, discardLogger())
}

func newRouter(svc SessionService) http.Handler {
	h := NewSessionHandler(svc, nil, discardLogger())
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, rdr))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

// createSession creates a session and waits for its initial fetch.
func createSession(t *testing.T, h http.Handler) SessionResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/sessions?wait=true", `{"aspect_ratio":1.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec)
}

// --- Session lifecycle ---

func TestHandleCreate_DefaultAspect(t *testing.T) {
	f := &stubFetcher{sites: testSites}
	h := newRouter(newTestManager(f))

	rec := do(t, h, http.MethodPost, "/v1/sessions?wait=true", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[SessionResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.ID, "ms_"))
	assert.Equal(t, types.LoadSucceeded, resp.State.Sites.Loading)
	assert.Len(t, resp.State.Sites.ChargeSites, 2)
	assert.Equal(t, resp.State.Params.Region.LatitudeDelta, resp.State.Params.Region.LongitudeDelta)
	assert.Equal(t, types.PhaseIdle, resp.State.Selection.Phase)
}

func TestHandleCreate_AspectScalesLatitudeDelta(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))

	resp := createSession(t, h)

	region := resp.State.Params.Region
	assert.InDelta(t, 1.5*region.LongitudeDelta, region.LatitudeDelta, 1e-12)
}

func TestHandleCreate_InvalidAspect(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))

	for _, body := range []string{`{"aspect_ratio":0}`, `{"aspect_ratio":-1}`} {
		rec := do(t, h, http.MethodPost, "/v1/sessions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(types.ErrCodeValidationInvalidAspect), errorCode(t, rec))
	}
}

func TestHandleCreate_UnknownField(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))

	rec := do(t, h, http.MethodPost, "/v1/sessions", `{"aspect":1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), errorCode(t, rec))
}

func TestHandleGet_UnknownSession(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))

	rec := do(t, h, http.MethodGet, "/v1/sessions/ms_missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundSession), errorCode(t, rec))
}

func TestHandleGet_Snapshot(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodGet, "/v1/sessions/"+created.ID+"?wait=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, created.ID, resp.ID)
	assert.Len(t, resp.State.Sites.ChargeSites, 2)
}

func TestHandleDelete(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodDelete, "/v1/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Viewport ---

func TestHandleUpdateViewport_InsideCoveredRegion(t *testing.T) {
	f := &stubFetcher{sites: testSites}
	h := newRouter(newTestManager(f))
	created := createSession(t, h)

	body := `{"region":{"latitude":45.54698979840522,"longitude":-122.66310214492715,"latitudeDelta":0.05,"longitudeDelta":0.05}}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport?wait=true", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ViewportResponse](t, rec)
	assert.False(t, resp.Requeried)
	assert.Equal(t, created.State.Params.Region, resp.Session.State.Params.Region)
	assert.Equal(t, 1, f.callCount())
}

func TestHandleUpdateViewport_BoundsTriggerRequery(t *testing.T) {
	f := &stubFetcher{sites: testSites}
	h := newRouter(newTestManager(f))
	created := createSession(t, h)

	body := `{"north":47.7,"south":47.5,"east":-122.2,"west":-122.4}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport?wait=true", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ViewportResponse](t, rec)
	assert.True(t, resp.Requeried)
	assert.Empty(t, resp.Warnings)

	region := resp.Session.State.Params.Region
	assert.InDelta(t, 47.6, region.Latitude, 1e-9)
	assert.InDelta(t, -122.3, region.Longitude, 1e-9)
	// East-west span lands in latitudeDelta.
	assert.InDelta(t, 0.1, region.LatitudeDelta, 1e-9)
	assert.InDelta(t, 0.1, region.LongitudeDelta, 1e-9)
	assert.Equal(t, types.LoadSucceeded, resp.Session.State.Sites.Loading)
	assert.Equal(t, 2, f.callCount())
}

func TestHandleUpdateViewport_AntimeridianWarning(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)

	body := `{"north":10,"south":-10,"east":-170,"west":170}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ViewportResponse](t, rec)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "antimeridian")
}

func TestHandleUpdateViewport_Invalid(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)
	target := "/v1/sessions/" + created.ID + "/viewport"

	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"both forms", `{"north":1,"south":0,"east":1,"west":0,"region":{"latitude":0,"longitude":0,"latitudeDelta":1,"longitudeDelta":1}}`, types.ErrCodeValidationInvalidRegion},
		{"missing bound", `{"north":1,"south":0,"east":1}`, types.ErrCodeValidationMissingField},
		{"empty", `{}`, types.ErrCodeValidationMissingField},
		{"bad latitude", `{"north":95,"south":0,"east":1,"west":0}`, types.ErrCodeValidationInvalidLat},
		{"bad longitude", `{"north":1,"south":0,"east":190,"west":0}`, types.ErrCodeValidationInvalidLon},
		{"negative delta", `{"region":{"latitude":0,"longitude":0,"latitudeDelta":-1,"longitudeDelta":1}}`, types.ErrCodeValidationInvalidRegion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rec))
		})
	}
}

func TestHandleUpdateViewport_PersistFailureIsNotFatal(t *testing.T) {
	mgr := newTestManager(&stubFetcher{})
	var persisted int
	svc := &mockSessionService{
		SessionService: mgr,
		PersistFunc: func(context.Context, *session.Session) error {
			persisted++
			return types.NewAppError(types.ErrCodeInternalDB, "db down", nil)
		},
	}
	h := newRouter(svc)
	created := createSession(t, h)

	body := `{"north":47.7,"south":47.5,"east":-122.2,"west":-122.4}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, persisted)
}

// --- Filters and refresh ---

func TestHandleUpdateFilters(t *testing.T) {
	f := &stubFetcher{sites: testSites}
	h := newRouter(newTestManager(f))
	created := createSession(t, h)

	body := `{"filters":{"obfuscatedFilter":null,"reservedFilter":false,"privateFilter":true}}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/filters?wait=true", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SessionResponse](t, rec)
	want := types.Filters{ReservedFilter: types.FilterFalse, PrivateFilter: types.FilterTrue}
	assert.Equal(t, want, resp.State.Params.Filters)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.calls, 2)
	assert.Equal(t, want, f.calls[1])
}

func TestHandleUpdateFilters_BadValue(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/filters", `{"filters":{"privateFilter":"yes"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRefresh_RetriesAfterFailure(t *testing.T) {
	f := &stubFetcher{err: errors.New("network request failed: connection refused")}
	h := newRouter(newTestManager(f))
	created := createSession(t, h)
	require.Equal(t, types.LoadFailed, created.State.Sites.Loading)
	require.NotNil(t, created.State.Sites.Error)

	f.mu.Lock()
	f.err, f.sites = nil, testSites
	f.mu.Unlock()

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/refresh?wait=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, types.LoadSucceeded, resp.State.Sites.Loading)
	assert.Nil(t, resp.State.Sites.Error)
	assert.Len(t, resp.State.Sites.ChargeSites, 2)
}

func TestHandleRefresh_AcceptedWithoutWait(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/refresh", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// --- Selection ---

func TestHandleClick_Lifecycle(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)
	target := "/v1/sessions/" + created.ID + "/selection/click"

	rec := do(t, h, http.MethodPost, target, `{"site_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ClickResponse](t, rec)
	assert.Equal(t, session.ClickSelected, resp.Action)
	assert.Equal(t, types.PhaseOpen, resp.Session.State.Selection.Phase)

	rec = do(t, h, http.MethodPost, target, `{"site_id":2}`)
	resp = decode[ClickResponse](t, rec)
	assert.Equal(t, session.ClickSwitched, resp.Action)
	require.NotNil(t, resp.Session.State.Selection.Site)
	assert.Equal(t, int64(2), resp.Session.State.Selection.Site.ID)

	rec = do(t, h, http.MethodPost, target, `{"site_id":2}`)
	resp = decode[ClickResponse](t, rec)
	assert.Equal(t, session.ClickUnselected, resp.Action)
	assert.Equal(t, types.PhaseClosing, resp.Session.State.Selection.Phase)
}

func TestHandleClick_UnknownSite(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/selection/click", `{"site_id":99}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundChargeSite), errorCode(t, rec))
}

func TestHandleClick_MissingSiteID(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/selection/click", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rec))
}

func TestHandleSelectSwitchUnselect(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)
	base := "/v1/sessions/" + created.ID + "/selection/"

	rec := do(t, h, http.MethodPost, base+"select", `{"site_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.PhaseOpen, decode[SessionResponse](t, rec).State.Selection.Phase)

	rec = do(t, h, http.MethodPost, base+"switch", `{"site_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sel := decode[SessionResponse](t, rec).State.Selection
	assert.Equal(t, types.PhaseOpen, sel.Phase)
	assert.Equal(t, int64(2), sel.Site.ID)

	rec = do(t, h, http.MethodPost, base+"unselect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sel = decode[SessionResponse](t, rec).State.Selection
	assert.Equal(t, types.PhaseClosing, sel.Phase)
	assert.Equal(t, int64(2), sel.Site.ID)
}

func TestHandleUpdateViewport_ClosesPopup(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)

	do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/selection/select", `{"site_id":1}`)
	body := `{"region":{"latitude":45.54698979840522,"longitude":-122.66310214492715,"latitudeDelta":0.01,"longitudeDelta":0.01}}`
	rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport", body)

	resp := decode[ViewportResponse](t, rec)
	assert.False(t, resp.Requeried)
	assert.Equal(t, types.PhaseClosing, resp.Session.State.Selection.Phase)
}

func TestHandleUpdateViewport_IgnoredWhileLocked(t *testing.T) {
	far := `{"north":47.7,"south":47.5,"east":-122.2,"west":-122.4}`

	t.Run("navigation open", func(t *testing.T) {
		f := &stubFetcher{sites: testSites}
		var persisted int
		svc := &mockSessionService{
			SessionService: newTestManager(f),
			PersistFunc: func(context.Context, *session.Session) error {
				persisted++
				return nil
			},
		}
		h := newRouter(svc)
		created := createSession(t, h)
		base := "/v1/sessions/" + created.ID
		do(t, h, http.MethodPost, base+"/selection/select", `{"site_id":1}`)
		do(t, h, http.MethodPut, base+"/navigation", `{"show":true}`)
		persisted = 0

		rec := do(t, h, http.MethodPut, base+"/viewport?wait=true", far)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[ViewportResponse](t, rec)
		assert.False(t, resp.Requeried)
		assert.Equal(t, string(store.LockedByNavigation), resp.Ignored)
		require.Len(t, resp.Warnings, 1)
		assert.Contains(t, resp.Warnings[0], "navigation")
		assert.Equal(t, created.State.Params.Region, resp.Session.State.Params.Region)
		assert.Equal(t, types.PhaseOpen, resp.Session.State.Selection.Phase)
		assert.True(t, resp.Session.State.Navigation.ShowPopup)
		assert.Equal(t, 1, f.callCount())
		assert.Zero(t, persisted)
	})

	t.Run("fetch error showing", func(t *testing.T) {
		f := &stubFetcher{err: errors.New("connection refused")}
		h := newRouter(newTestManager(f))
		created := createSession(t, h)
		require.NotNil(t, created.State.Sites.Error)

		rec := do(t, h, http.MethodPut, "/v1/sessions/"+created.ID+"/viewport?wait=true", far)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[ViewportResponse](t, rec)
		assert.False(t, resp.Requeried)
		assert.Equal(t, string(store.LockedByFetchError), resp.Ignored)
		require.Len(t, resp.Warnings, 1)
		assert.Contains(t, resp.Warnings[0], "refresh")
		assert.Equal(t, created.State.Params.Region, resp.Session.State.Params.Region)
		assert.Equal(t, 1, f.callCount())
	})
}

// --- Navigation ---

func TestHandleSetNavigation(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{}))
	created := createSession(t, h)
	target := "/v1/sessions/" + created.ID + "/navigation"

	rec := do(t, h, http.MethodPut, target, `{"show":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.Navigation{ShowPopup: true}, decode[SessionResponse](t, rec).State.Navigation)

	rec = do(t, h, http.MethodPut, target, `{"show":false}`)
	assert.False(t, decode[SessionResponse](t, rec).State.Navigation.ShowPopup)

	rec = do(t, h, http.MethodPut, target, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNavigationLinks(t *testing.T) {
	h := newRouter(newTestManager(&stubFetcher{sites: testSites}))
	created := createSession(t, h)
	target := "/v1/sessions/" + created.ID + "/navigation/links"

	rec := do(t, h, http.MethodGet, target, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/selection/select", `{"site_id":1}`)

	rec = do(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	links := decode[LinksResponse](t, rec)
	assert.Equal(t, int64(1), links.SiteID)
	require.Len(t, links.Links, 3)
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&destination=45.5,-122.6", links.Links[0].URL)

	rec = do(t, h, http.MethodGet, target+"?app=waze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	links = decode[LinksResponse](t, rec)
	require.Len(t, links.Links, 1)
	assert.Equal(t, "https://waze.com/ul?ll=45.5,-122.6&navigate=yes", links.Links[0].URL)

	rec = do(t, h, http.MethodGet, target+"?app=bing", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandle_ServiceErrorPropagates(t *testing.T) {
	svc := &mockSessionService{
		SessionService: newTestManager(&stubFetcher{}),
		GetFunc: func(context.Context, string) (*session.Session, error) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "database unavailable", errors.New("dial tcp"))
		},
	}
	h := newRouter(svc)

	rec := do(t, h, http.MethodGet, "/v1/sessions/ms_1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalDB), errorCode(t, rec))
	assert.False(t, bytes.Contains(rec.Body.Bytes(), []byte("dial tcp")))
}
