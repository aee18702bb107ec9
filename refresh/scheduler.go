package refresh

import (
	"context"
	"fmt"
	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"osm4cities/storage"
	"time"
)

const (
	DefaultLimit       = 1
	DefaultConcurrency = 1
	MaxConcurrency     = 3
	DefaultStaleAfter  = 24 * time.Hour
)

type DueDatasetRepository interface {
	FindDatasetsDueForRefresh(ctx context.Context, limit int, olderThan time.Time) ([]storage.Dataset, error)
}

type DatasetRefresher interface {
	RefreshDataset(ctx context.Context, datasetID uuid.UUID, requester *uuid.UUID) (*Result, error)
}

// Summary of one scheduled run. Each entry of Errors has the format "<dataset-id>: <message>".
type Summary struct {
	TotalFound int      `json:"totalFound"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`

	failures *multierror.Error
}

// Err combines all per-dataset failures and is nil when every refresh succeeded.
func (s *Summary) Err() error {
	return s.failures.ErrorOrNil()
}

type outcome struct {
	datasetID uuid.UUID
	result    *Result
	err       error
}

type Scheduler struct {
	repository  DueDatasetRepository
	refresher   DatasetRefresher
	clock       clockwork.Clock
	concurrency int
	staleAfter  time.Duration
}

// NewScheduler creates a scheduler refreshing up to concurrency datasets at the same time. The concurrency is limited to
// MaxConcurrency to keep the load on the Overpass service low.
func NewScheduler(repository DueDatasetRepository, refresher DatasetRefresher, clock clockwork.Clock, concurrency int, staleAfter time.Duration) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Scheduler{
		repository:  repository,
		refresher:   refresher,
		clock:       clock,
		concurrency: concurrency,
		staleAfter:  staleAfter,
	}
}

// RunScheduledUpdates refreshes at most limit datasets which are due. Failing refreshes are recorded in the summary and
// don't stop the run. Only errors preventing the run itself are returned.
func (s *Scheduler) RunScheduledUpdates(ctx context.Context, limit int) (*Summary, error) {
	if limit < 1 {
		return nil, errors.Errorf("Invalid limit %d, must be at least 1", limit)
	}

	runStartTime := time.Now()
	olderThan := s.clock.Now().UTC().Add(-s.staleAfter)

	datasets, err := s.repository.FindDatasetsDueForRefresh(ctx, limit, olderThan)
	if err != nil {
		return nil, err
	}

	sigolo.Infof("Found %d datasets to refresh (limit %d, concurrency %d)", len(datasets), limit, s.concurrency)

	summary := &Summary{
		TotalFound: len(datasets),
		Errors:     []string{},
	}
	if len(datasets) == 0 {
		return summary, nil
	}

	pool := pond.NewResultPool[*outcome](s.concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, dataset := range datasets {
		datasetID := dataset.ID
		group.Submit(func() *outcome {
			return s.refresh(ctx, datasetID)
		})
	}

	outcomes, err := group.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "Waiting for dataset refreshes failed")
	}

	for _, o := range outcomes {
		if o.err != nil {
			sigolo.Errorf("Refresh of dataset %s failed: %+v", o.datasetID, o.err)
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", o.datasetID, o.err.Error()))
			summary.failures = multierror.Append(summary.failures, errors.Wrapf(o.err, "Dataset %s", o.datasetID))
			continue
		}
		sigolo.Debugf("Refreshed dataset %s with %d features", o.datasetID, o.result.DataCount)
		summary.Successful++
	}

	sigolo.Infof("Finished scheduled update in %s: %d successful, %d failed", time.Since(runStartTime), summary.Successful, summary.Failed)

	return summary, nil
}

// refresh runs one refresh of the batch. A panic becomes the error of this dataset, since pond would otherwise fail the
// whole group.
func (s *Scheduler) refresh(ctx context.Context, datasetID uuid.UUID) (o *outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = &outcome{datasetID: datasetID, err: errors.Errorf("Refresh panicked: %v", r)}
		}
	}()

	result, err := s.refresher.RefreshDataset(ctx, datasetID, nil)
	return &outcome{datasetID: datasetID, result: result, err: err}
}
