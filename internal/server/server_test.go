package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/decision"
	"github.com/signalworks/outreachd/internal/dispatch"
	"github.com/signalworks/outreachd/internal/store"
)

type fakeComposer struct {
	decision decision.Decision
	err      error
	entity   string
	lines    []string
}

func (f *fakeComposer) Compose(_ context.Context, entity string, lines []string) (decision.Decision, error) {
	f.entity = entity
	f.lines = lines
	if f.err != nil {
		return decision.Decision{}, f.err
	}
	return f.decision, nil
}

type fakeStore struct {
	records  []store.Record
	rawLines map[string][]string
	created  []store.Record
	listErr  error
}

func (f *fakeStore) Create(_ context.Context, d decision.Decision, entityID, leadEmail string) (store.Record, error) {
	record := store.Record{
		ID:        "rec-1",
		EntityID:  entityID,
		LeadEmail: leadEmail,
		Decision:  d,
		Status:    store.StatusPending,
	}
	f.created = append(f.created, record)
	return record, nil
}

func (f *fakeStore) List(_ context.Context, status store.Status) ([]store.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if status == "" {
		return f.records, nil
	}
	var out []store.Record
	for _, r := range f.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RawLogLines(_ context.Context, entityID string) ([]string, error) {
	return f.rawLines[entityID], nil
}

type fakeDispatcher struct {
	report dispatch.Report
	err    error
	runs   int
}

func (f *fakeDispatcher) Run(context.Context) (dispatch.Report, error) {
	f.runs++
	return f.report, f.err
}

func validDecision() decision.Decision {
	return decision.Decision{
		Category:        classify.CategoryGrowth,
		PropensityScore: 0.6,
		EmailSubject:    "subject",
		EmailBody:       "body",
		Reasoning:       "reasoning",
	}
}

func setupTestServer(t *testing.T, composer Composer, st Store, d Dispatcher) *Server {
	t.Helper()
	srv, err := NewServer(composer, st, d, prometheus.NewRegistry(), zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv, err := NewServer(&fakeComposer{}, &fakeStore{}, nil, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 8080, srv.config.Port)
	})

	t.Run("returns error when composer is nil", func(t *testing.T) {
		_, err := NewServer(nil, &fakeStore{}, nil, nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "composer cannot be nil")
	})

	t.Run("returns error when store is nil", func(t *testing.T) {
		_, err := NewServer(&fakeComposer{}, nil, nil, nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "store cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	dispatch.NewMetrics(reg)
	srv, err := NewServer(&fakeComposer{}, &fakeStore{}, nil, reg, zap.NewNop(), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "outreachd_drafts_created_total")
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleDecisions(t *testing.T) {
	t.Run("composes from provided logs", func(t *testing.T) {
		composer := &fakeComposer{decision: validDecision()}
		srv := setupTestServer(t, composer, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{
			EntityID: "org-1",
			Logs:     []string{"/pricing", "/docs/api"},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp DecisionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, validDecision(), resp.Decision)
		assert.Empty(t, resp.RecordID)
		assert.Equal(t, "org-1", composer.entity)
		assert.Equal(t, []string{"/pricing", "/docs/api"}, composer.lines)
	})

	t.Run("falls back to stored raw logs", func(t *testing.T) {
		composer := &fakeComposer{decision: validDecision()}
		st := &fakeStore{rawLines: map[string][]string{"org-1": {"/sso", "error 500"}}}
		srv := setupTestServer(t, composer, st, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{EntityID: "org-1"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"/sso", "error 500"}, composer.lines)
	})

	t.Run("save persists a pending record", func(t *testing.T) {
		st := &fakeStore{}
		srv := setupTestServer(t, &fakeComposer{decision: validDecision()}, st, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{
			EntityID:  "org-1",
			LeadEmail: "lead@example.com",
			Logs:      []string{"/pricing"},
			Save:      true,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp DecisionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "rec-1", resp.RecordID)
		require.Len(t, st.created, 1)
		assert.Equal(t, "lead@example.com", st.created[0].LeadEmail)
	})

	t.Run("save without lead_email is rejected", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{decision: validDecision()}, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{
			EntityID: "org-1",
			Logs:     []string{"/pricing"},
			Save:     true,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing entity_id is rejected", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{Logs: []string{"x"}})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("composition error maps to 422", func(t *testing.T) {
		composer := &fakeComposer{err: &decision.CompositionError{Violations: []string{"email_subject is empty"}}}
		srv := setupTestServer(t, composer, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{
			EntityID: "org-1",
			Logs:     []string{"x"},
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("generator failure maps to 502", func(t *testing.T) {
		composer := &fakeComposer{err: errors.New("model unavailable")}
		srv := setupTestServer(t, composer, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/decisions", DecisionRequest{
			EntityID: "org-1",
			Logs:     []string{"x"},
		})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleRecords(t *testing.T) {
	records := []store.Record{
		{ID: "a", Status: store.StatusPending, Decision: validDecision()},
		{ID: "b", Status: store.StatusDraftCreated, Decision: validDecision()},
	}

	t.Run("lists all records", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{records: records}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var got []store.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got, 2)
	})

	t.Run("filters by status", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{records: records}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/records?status=PENDING", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var got []store.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/records?status=SENT", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestHandleDispatch(t *testing.T) {
	t.Run("runs the dispatcher and returns the report", func(t *testing.T) {
		d := &fakeDispatcher{report: dispatch.Report{Created: 2, Failed: 1}}
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, d)

		rec := postJSON(t, srv, "/api/v1/dispatch", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var report dispatch.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, d.report, report)
		assert.Equal(t, 1, d.runs)
	})

	t.Run("dispatch failure maps to 502", func(t *testing.T) {
		d := &fakeDispatcher{err: errors.New("credential exchange failed")}
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, d)

		rec := postJSON(t, srv, "/api/v1/dispatch", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("missing dispatcher maps to 503", func(t *testing.T) {
		srv := setupTestServer(t, &fakeComposer{}, &fakeStore{}, nil)

		rec := postJSON(t, srv, "/api/v1/dispatch", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
