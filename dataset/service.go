package dataset

import (
	"context"
	"github.com/google/uuid"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"osm4cities/area"
	"osm4cities/refresh"
	"osm4cities/storage"
	"time"
)

type Repository interface {
	FindDataset(ctx context.Context, id uuid.UUID) (*storage.Dataset, error)
	CreateDataset(ctx context.Context, dataset *storage.Dataset) error
	FindWatchableDataset(ctx context.Context, templateID uuid.UUID, areaID int64, userID uuid.UUID) (*storage.Dataset, error)
	SetDatasetActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteDataset(ctx context.Context, id uuid.UUID) error
	CreateWatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID, when time.Time) error
	DeleteWatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error
	FindTemplate(ctx context.Context, id uuid.UUID) (*storage.Template, error)
	FindArea(ctx context.Context, id int64) (*storage.Area, error)
	SaveArea(ctx context.Context, area *storage.Area) error
}

// Service manages the lifecycle of datasets. Snapshots of datasets are only written by the refresh package.
type Service struct {
	repository Repository
	areas      area.Lookup
	clock      clockwork.Clock
}

func NewService(repository Repository, areas area.Lookup, clock clockwork.Clock) *Service {
	return &Service{
		repository: repository,
		areas:      areas,
		clock:      clock,
	}
}

// Create creates a new active and public dataset of the template for the area and lets the user watch it. When a
// dataset of this template and area already exists and is public or owned by the user, the user only starts watching
// the existing one. Private datasets of other users are never shared this way.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, templateID uuid.UUID, areaID int64) (*storage.Dataset, error) {
	template, err := s.repository.FindTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.FindWatchableDataset(ctx, templateID, areaID, userID)
	if err == nil {
		sigolo.Debugf("Dataset of template %s and area %d exists as %s, user %s watches it", templateID, areaID, existing.ID, userID)
		err = s.repository.CreateWatch(ctx, userID, existing.ID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	datasetArea, err := s.resolveArea(ctx, areaID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	dataset := &storage.Dataset{
		TemplateID: template.ID,
		AreaID:     datasetArea.ID,
		UserID:     userID,
		CityName:   datasetArea.Name,
		IsActive:   true,
		IsPublic:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.repository.CreateDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}

	err = s.repository.CreateWatch(ctx, userID, dataset.ID, now)
	if err != nil {
		return nil, err
	}

	sigolo.Infof("Created dataset %s of template '%s' for %s (%d)", dataset.ID, template.Name, dataset.CityName, dataset.AreaID)
	dataset.Template = template
	dataset.Area = datasetArea
	return dataset, nil
}

// resolveArea uses the stored area and looks unknown areas up.
func (s *Service) resolveArea(ctx context.Context, areaID int64) (*storage.Area, error) {
	storedArea, err := s.repository.FindArea(ctx, areaID)
	if err == nil {
		return storedArea, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sigolo.Debugf("Area %d unknown, look it up", areaID)
	lookedUpArea, err := s.areas.Lookup(ctx, areaID)
	if err != nil {
		return nil, err
	}

	err = s.repository.SaveArea(ctx, lookedUpArea)
	if err != nil {
		return nil, err
	}
	return lookedUpArea, nil
}

func (s *Service) SetActive(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID, active bool) error {
	_, err := s.findOwned(ctx, userID, datasetID)
	if err != nil {
		return err
	}

	err = s.repository.SetDatasetActive(ctx, datasetID, active)
	if err != nil {
		return err
	}

	sigolo.Infof("Set dataset %s active=%t", datasetID, active)
	return nil
}

// Watch lets the user watch the dataset. Private datasets can only be watched by their owner.
func (s *Service) Watch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	dataset, err := s.repository.FindDataset(ctx, datasetID)
	if err != nil {
		return err
	}
	if !dataset.IsPublic && dataset.UserID != userID {
		return &refresh.ForbiddenError{DatasetID: datasetID, UserID: userID}
	}
	return s.repository.CreateWatch(ctx, userID, datasetID, s.clock.Now())
}

func (s *Service) Unwatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	return s.repository.DeleteWatch(ctx, userID, datasetID)
}

// Delete removes a dataset of the user. Datasets watched by other users are kept and storage.ErrTooManyWatchers is
// returned, also when the owner doesn't watch the dataset anymore.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	_, err := s.findOwned(ctx, userID, datasetID)
	if err != nil {
		return err
	}

	err = s.repository.DeleteDataset(ctx, datasetID)
	if err != nil {
		return err
	}

	sigolo.Infof("Deleted dataset %s", datasetID)
	return nil
}

func (s *Service) findOwned(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) (*storage.Dataset, error) {
	dataset, err := s.repository.FindDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset.UserID != userID {
		return nil, &refresh.ForbiddenError{DatasetID: datasetID, UserID: userID}
	}
	return dataset, nil
}
