package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/decision"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func testDecision() decision.Decision {
	return decision.Decision{
		Category:        classify.CategoryHighValueSupportRisk,
		PropensityScore: 0.85,
		EmailSubject:    "Getting your rollout unblocked",
		EmailBody:       "Hi,\n\nSaw the SSO setup hitting timeouts...",
		Reasoning:       "Enterprise intent alongside build errors.",
	}
}

func TestStore_CreateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testDecision(), "org-1", "lead@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got := pending[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "org-1", got.EntityID)
	assert.Equal(t, "lead@example.com", got.LeadEmail)
	assert.Equal(t, testDecision(), got.Decision)
}

func TestStore_CreateRejectsInvalidDecision(t *testing.T) {
	s := openTestStore(t)

	invalid := testDecision()
	invalid.PropensityScore = 7

	_, err := s.Create(context.Background(), invalid, "org-1", "lead@example.com")
	var compErr *decision.CompositionError
	require.ErrorAs(t, err, &compErr)

	// Nothing persisted.
	records, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_CreateDuplicateID(t *testing.T) {
	s := openTestStore(t)
	s.newID = func() string { return "fixed-id" }

	_, err := s.Create(context.Background(), testDecision(), "org-1", "a@example.com")
	require.NoError(t, err)

	_, err = s.Create(context.Background(), testDecision(), "org-2", "b@example.com")
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestStore_ListPendingOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, testDecision(), "org-1", "a@example.com")
	require.NoError(t, err)
	second, err := s.Create(ctx, testDecision(), "org-2", "b@example.com")
	require.NoError(t, err)

	// Move one out of PENDING; it must disappear from the listing.
	applied, err := s.Transition(ctx, first.ID, StatusPending, StatusDraftCreated)
	require.NoError(t, err)
	require.True(t, applied)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestStore_TransitionConditional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	record, err := s.Create(ctx, testDecision(), "org-1", "a@example.com")
	require.NoError(t, err)

	applied, err := s.Transition(ctx, record.ID, StatusPending, StatusDraftCreated)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second attempt from PENDING observes a NoOp, not an error.
	applied, err = s.Transition(ctx, record.ID, StatusPending, StatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraftCreated, got.Status)
}

func TestStore_TransitionUnknownID(t *testing.T) {
	s := openTestStore(t)

	applied, err := s.Transition(context.Background(), "nope", StatusPending, StatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStore_TransitionRejectsInvalidStatus(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Transition(context.Background(), "id", Status("SENT"), StatusFailed)
	require.Error(t, err)
}

func TestStore_TransitionConcurrentDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	record, err := s.Create(ctx, testDecision(), "org-1", "a@example.com")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.Transition(ctx, record.ID, StatusPending, StatusDraftCreated)
			assert.NoError(t, err)
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for applied := range results {
		if applied {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller must win the transition")

	got, err := s.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraftCreated, got.Status)
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RawLogsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lines := []string{"/pricing/enterprise", "/error/500-build-timeout"}
	require.NoError(t, s.AppendRawLogs(ctx, "org-1", lines))
	require.NoError(t, s.AppendRawLogs(ctx, "org-2", []string{"/docs/api"}))

	got, err := s.RawLogLines(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, lines, got)

	empty, err := s.RawLogLines(ctx, "org-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_AppendRawLogsEmptyNoOp(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AppendRawLogs(context.Background(), "org-1", nil))
}
