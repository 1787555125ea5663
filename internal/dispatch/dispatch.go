// Package dispatch drives PENDING decision records to external draft
// creation.
//
// A run is a single sequential pass over the PENDING snapshot. Safety
// under overlapping runs comes entirely from the store's conditional
// transition: only one run wins the PENDING -> DRAFT_CREATED (or
// FAILED) move for a given record, and the loser observes a NoOp and
// counts the record as skipped.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/store"
)

// Store is the subset of the lifecycle store the dispatcher needs. The
// dispatcher only requests transitions; it never writes status directly.
type Store interface {
	ListPending(ctx context.Context) ([]store.Record, error)
	Transition(ctx context.Context, id string, from, to store.Status) (bool, error)
}

// CredentialSource obtains the bearer credential for the external mail
// system. Acquired once per run; failure aborts the run before any
// record is touched.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// DraftCreator creates one external draft. Implemented by gmail.Client.
type DraftCreator interface {
	CreateDraft(ctx context.Context, accessToken, to, subject, body string) error
}

// Report summarizes the per-record outcomes of one run.
type Report struct {
	Created int `json:"created"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Dispatcher moves PENDING records through external draft creation.
type Dispatcher struct {
	store   Store
	creds   CredentialSource
	drafts  DraftCreator
	logger  *zap.Logger
	metrics *Metrics
}

// New creates a dispatcher. Nil logger and metrics fall back to no-op
// implementations.
func New(st Store, creds CredentialSource, drafts DraftCreator, logger *zap.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		store:   st,
		creds:   creds,
		drafts:  drafts,
		logger:  logger,
		metrics: metrics,
	}
}

// Run performs one dispatch pass. One record's failure never aborts
// the remaining records; only credential acquisition or a store listing
// failure fails the whole run.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	token, err := d.creds.AccessToken(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("dispatch: acquiring credential: %w", err)
	}

	records, err := d.store.ListPending(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("dispatch: listing pending records: %w", err)
	}

	var report Report
	for _, record := range records {
		d.processRecord(ctx, token, record, &report)
	}

	d.logger.Info("dispatch run complete",
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (d *Dispatcher) processRecord(ctx context.Context, token string, record store.Record, report *Report) {
	logger := d.logger.With(
		zap.String("id", record.ID),
		zap.String("entity", record.EntityID),
		zap.String("lead", record.LeadEmail))

	err := d.drafts.CreateDraft(ctx, token,
		record.LeadEmail,
		record.Decision.EmailSubject,
		record.Decision.EmailBody)
	if err != nil {
		logger.Warn("draft creation failed", zap.Error(err))
		applied, terr := d.store.Transition(ctx, record.ID, store.StatusPending, store.StatusFailed)
		if terr != nil {
			logger.Error("failed to mark record FAILED", zap.Error(terr))
		}
		if applied || terr != nil {
			report.Failed++
			d.metrics.failed.Inc()
		} else {
			// Another run already moved this record.
			report.Skipped++
			d.metrics.skipped.Inc()
		}
		return
	}

	applied, terr := d.store.Transition(ctx, record.ID, store.StatusPending, store.StatusDraftCreated)
	if terr != nil {
		logger.Error("failed to mark record DRAFT_CREATED", zap.Error(terr))
		report.Failed++
		d.metrics.failed.Inc()
		return
	}
	if !applied {
		logger.Info("record already handled by another run")
		report.Skipped++
		d.metrics.skipped.Inc()
		return
	}

	logger.Info("draft created")
	report.Created++
	d.metrics.created.Inc()
}
