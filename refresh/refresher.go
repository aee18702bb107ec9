package refresh

import (
	"context"
	"github.com/google/uuid"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"osm4cities/common"
	"osm4cities/feature"
	ownOsm "osm4cities/osm"
	"osm4cities/overpass"
	"osm4cities/stats"
	"osm4cities/storage"
	"time"
)

type DatasetRepository interface {
	FindDataset(ctx context.Context, id uuid.UUID) (*storage.Dataset, error)
	UpdateDatasetSnapshot(ctx context.Context, id uuid.UUID, expectedVersion int, snapshot storage.Snapshot) error
}

type Result struct {
	DataCount   int       `json:"dataCount"`
	LastChecked time.Time `json:"lastChecked"`
}

// Refresher fetches the current OSM data of a dataset and replaces its stored snapshot.
type Refresher struct {
	repository DatasetRepository
	executor   overpass.Executor
	clock      clockwork.Clock
	locks      *datasetLocks
}

func NewRefresher(repository DatasetRepository, executor overpass.Executor, clock clockwork.Clock) *Refresher {
	return &Refresher{
		repository: repository,
		executor:   executor,
		clock:      clock,
		locks:      newDatasetLocks(),
	}
}

// RefreshDataset refreshes the dataset with the given ID. When requester is set, the dataset must be owned by that user.
// The stored dataset is either updated completely or not at all.
func (r *Refresher) RefreshDataset(ctx context.Context, datasetID uuid.UUID, requester *uuid.UUID) (*Result, error) {
	unlock := r.locks.Lock(datasetID)
	defer unlock()

	sigolo.Debugf("Start refresh of dataset %s", datasetID)
	refreshStartTime := time.Now()

	dataset, err := r.repository.FindDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if requester != nil && dataset.UserID != *requester {
		return nil, &ForbiddenError{DatasetID: datasetID, UserID: *requester}
	}
	if !dataset.IsActive {
		return nil, &InactiveDatasetError{DatasetID: datasetID}
	}

	query, err := dataset.ResolveQuery()
	if err != nil {
		return nil, err
	}

	response, err := r.executor.Execute(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "Query of dataset %s failed", datasetID)
	}

	checkedAt := r.clock.Now().UTC()

	featureCollection, err := convert(datasetID, response.Elements)
	if err != nil {
		return nil, err
	}

	datasetStats, err := computeStats(datasetID, response.Elements, checkedAt)
	if err != nil {
		return nil, err
	}

	snapshot := storage.Snapshot{
		FeatureCollection: featureCollection,
		BBox:              common.CalculateBBox(featureCollection),
		Stats:             datasetStats,
		DataCount:         len(featureCollection.Features),
		CheckedAt:         checkedAt,
	}

	err = r.repository.UpdateDatasetSnapshot(ctx, datasetID, dataset.Version, snapshot)
	if err != nil {
		return nil, err
	}

	sigolo.Infof("Finished refresh of dataset %s (%s) in %s with %d features from %d elements", datasetID, dataset.CityName, time.Since(refreshStartTime), snapshot.DataCount, len(response.Elements))

	return &Result{
		DataCount:   snapshot.DataCount,
		LastChecked: checkedAt,
	}, nil
}

func convert(datasetID uuid.UUID, elements []ownOsm.Element) (fc *geojson.FeatureCollection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConversionError{DatasetID: datasetID, Err: errors.Errorf("%v", r)}
		}
	}()

	converter := feature.NewConverter()
	err = ownOsm.NewOsmReader().Read(elements, converter)
	if err != nil {
		return nil, &ConversionError{DatasetID: datasetID, Err: err}
	}
	return converter.FeatureCollection(), nil
}

func computeStats(datasetID uuid.UUID, elements []ownOsm.Element, now time.Time) (result stats.DatasetStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StatsComputationError{DatasetID: datasetID, Err: errors.Errorf("%v", r)}
		}
	}()

	extractor := stats.NewExtractor(now)
	err = ownOsm.NewOsmReader().Read(elements, extractor)
	if err != nil {
		return stats.DatasetStats{}, &StatsComputationError{DatasetID: datasetID, Err: err}
	}
	return extractor.Stats(), nil
}
