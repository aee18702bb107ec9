package storage

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"time"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindDataset(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var dataset Dataset
	err := r.db.WithContext(ctx).
		Preload("Template").
		Preload("Area").
		Where("id = ?", id).
		First(&dataset).Error
	if err != nil {
		return nil, wrapNotFound(err, "Unable to find dataset %s", id)
	}
	return &dataset, nil
}

// FindDatasetsDueForRefresh returns at most limit active datasets that were never checked or not since olderThan.
// Never checked datasets come first, followed by the least recently updated ones.
func (r *Repository) FindDatasetsDueForRefresh(ctx context.Context, limit int, olderThan time.Time) ([]Dataset, error) {
	var datasets []Dataset
	err := r.db.WithContext(ctx).
		Omit("geojson").
		Where("is_active = ? AND (last_checked IS NULL OR last_checked < ?)", true, olderThan.UTC()).
		Order("CASE WHEN last_checked IS NULL THEN 0 ELSE 1 END").
		Order("updated_at ASC").
		Limit(limit).
		Find(&datasets).Error
	if err != nil {
		return nil, errors.Wrap(err, "Unable to find datasets due for refresh")
	}
	return datasets, nil
}

// UpdateDatasetSnapshot writes all fields of the snapshot in one statement. The update only happens when the stored
// version still equals expectedVersion, otherwise ErrVersionConflict is returned and nothing is written.
func (r *Repository) UpdateDatasetSnapshot(ctx context.Context, id uuid.UUID, expectedVersion int, snapshot Snapshot) error {
	geojsonValue, err := toJson(snapshot.FeatureCollection)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode GeoJSON of dataset %s", id)
	}
	bboxValue, err := toJson(snapshot.BBox)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode bbox of dataset %s", id)
	}
	statsValue, err := toJson(&snapshot.Stats)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode statistics of dataset %s", id)
	}

	checkedAt := snapshot.CheckedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&Dataset{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"geojson":      geojsonValue,
			"bbox":         bboxValue,
			"stats":        statsValue,
			"data_count":   snapshot.DataCount,
			"last_checked": checkedAt,
			"updated_at":   checkedAt,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "Unable to update snapshot of dataset %s", id)
	}

	if result.RowsAffected == 0 {
		var count int64
		err = r.db.WithContext(ctx).Model(&Dataset{}).Where("id = ?", id).Count(&count).Error
		if err != nil {
			return errors.Wrapf(err, "Unable to check existence of dataset %s", id)
		}
		if count == 0 {
			return errors.Wrapf(ErrNotFound, "Dataset %s", id)
		}
		return errors.Wrapf(ErrVersionConflict, "Dataset %s is not at version %d anymore", id, expectedVersion)
	}

	return nil
}

func (r *Repository) CreateDataset(ctx context.Context, dataset *Dataset) error {
	err := r.db.WithContext(ctx).Create(dataset).Error
	if err != nil {
		return errors.Wrap(err, "Unable to create dataset")
	}
	return nil
}

// FindWatchableDataset returns the oldest dataset of the template and area which the user may watch, i.e. a public
// dataset or one of the user's own. ErrNotFound is returned when there is none.
func (r *Repository) FindWatchableDataset(ctx context.Context, templateID uuid.UUID, areaID int64, userID uuid.UUID) (*Dataset, error) {
	var dataset Dataset
	err := r.db.WithContext(ctx).
		Omit("geojson").
		Where("template_id = ? AND area_id = ?", templateID, areaID).
		Where("(is_public = ? OR user_id = ?)", true, userID).
		Order("created_at ASC").
		First(&dataset).Error
	if err != nil {
		return nil, wrapNotFound(err, "Unable to find dataset of template %s and area %d", templateID, areaID)
	}
	return &dataset, nil
}

// SetDatasetActive changes the activation flag without touching updated_at, which only advances on refreshes.
func (r *Repository) SetDatasetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&Dataset{}).
		Where("id = ?", id).
		UpdateColumn("is_active", active)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "Unable to update activation of dataset %s", id)
	}
	if result.RowsAffected == 0 {
		return r.datasetExists(ctx, id)
	}
	return nil
}

func (r *Repository) datasetExists(ctx context.Context, id uuid.UUID) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&Dataset{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return errors.Wrapf(err, "Unable to check existence of dataset %s", id)
	}
	if count == 0 {
		return errors.Wrapf(ErrNotFound, "Dataset %s", id)
	}
	return nil
}

// DeleteDataset removes the dataset and its watches. Datasets watched by anybody else than their owner are not deleted,
// even when the owner doesn't watch it anymore.
func (r *Repository) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dataset Dataset
		err := tx.Select("id", "user_id").Where("id = ?", id).Take(&dataset).Error
		if err != nil {
			return wrapNotFound(err, "Unable to load dataset %s", id)
		}

		var otherWatchers int64
		err = tx.Model(&Watch{}).Where("dataset_id = ? AND user_id <> ?", id, dataset.UserID).Count(&otherWatchers).Error
		if err != nil {
			return errors.Wrapf(err, "Unable to count watchers of dataset %s", id)
		}
		if otherWatchers > 0 {
			return errors.Wrapf(ErrTooManyWatchers, "Dataset %s has %d watchers besides its owner", id, otherWatchers)
		}

		err = tx.Where("dataset_id = ?", id).Delete(&Watch{}).Error
		if err != nil {
			return errors.Wrapf(err, "Unable to delete watches of dataset %s", id)
		}

		result := tx.Where("id = ?", id).Delete(&Dataset{})
		if result.Error != nil {
			return errors.Wrapf(result.Error, "Unable to delete dataset %s", id)
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "Dataset %s", id)
		}
		return nil
	})
}

func (r *Repository) CountDatasetsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Dataset{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "Unable to count datasets of user %s", userID)
	}
	return count, nil
}

// FindPublicDatasetsByUser returns the public datasets owned by the user without their GeoJSON.
func (r *Repository) FindPublicDatasetsByUser(ctx context.Context, userID uuid.UUID) ([]Dataset, error) {
	var datasets []Dataset
	err := r.db.WithContext(ctx).
		Omit("geojson").
		Preload("Template").
		Where("user_id = ? AND is_public = ?", userID, true).
		Order("created_at ASC").
		Find(&datasets).Error
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to find public datasets of user %s", userID)
	}
	return datasets, nil
}

func (r *Repository) CreateWatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID, when time.Time) error {
	watch := &Watch{UserID: userID, DatasetID: datasetID, CreatedAt: when.UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(watch).Error
	if err != nil {
		return errors.Wrapf(err, "Unable to create watch of user %s for dataset %s", userID, datasetID)
	}
	return nil
}

func (r *Repository) DeleteWatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("user_id = ? AND dataset_id = ?", userID, datasetID).Delete(&Watch{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "Unable to delete watch of user %s for dataset %s", userID, datasetID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "Watch of user %s for dataset %s", userID, datasetID)
	}
	return nil
}

func (r *Repository) CountWatchers(ctx context.Context, datasetID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Watch{}).Where("dataset_id = ?", datasetID).Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "Unable to count watchers of dataset %s", datasetID)
	}
	return count, nil
}

func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, wrapNotFound(err, "Unable to find user %s", id)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		return errors.Wrapf(err, "Unable to create user %s", user.Email)
	}
	return nil
}

// FindUserDueForReport returns the oldest user whose report interval elapsed at the given time or who never received a
// report. The result is nil when no user is due.
func (r *Repository) FindUserDueForReport(ctx context.Context, now time.Time) (*User, error) {
	now = now.UTC()
	dailyCutoff, _ := ReportsDaily.Interval()
	weeklyCutoff, _ := ReportsWeekly.Interval()

	var users []User
	err := r.db.WithContext(ctx).
		Where("(reports_frequency = ? AND (last_report_sent IS NULL OR last_report_sent < ?)) OR (reports_frequency = ? AND (last_report_sent IS NULL OR last_report_sent < ?))",
			ReportsDaily, now.Add(-dailyCutoff),
			ReportsWeekly, now.Add(-weeklyCutoff)).
		Order("created_at ASC").
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "Unable to find user due for report")
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *Repository) MarkReportSent(ctx context.Context, userID uuid.UUID, when time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		UpdateColumn("last_report_sent", when.UTC())
	if result.Error != nil {
		return errors.Wrapf(result.Error, "Unable to mark report of user %s as sent", userID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "User %s", userID)
	}
	return nil
}

func (r *Repository) FindTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	var template Template
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&template).Error
	if err != nil {
		return nil, wrapNotFound(err, "Unable to find template %s", id)
	}
	return &template, nil
}

func (r *Repository) CreateTemplate(ctx context.Context, template *Template) error {
	err := r.db.WithContext(ctx).Create(template).Error
	if err != nil {
		return errors.Wrapf(err, "Unable to create template '%s'", template.Name)
	}
	return nil
}

func (r *Repository) FindArea(ctx context.Context, id int64) (*Area, error) {
	var area Area
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&area).Error
	if err != nil {
		return nil, wrapNotFound(err, "Unable to find area %d", id)
	}
	return &area, nil
}

// SaveArea inserts the area or replaces all fields of an existing area with the same ID.
func (r *Repository) SaveArea(ctx context.Context, area *Area) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(area).Error
	if err != nil {
		return errors.Wrapf(err, "Unable to save area %d", area.ID)
	}
	return nil
}

func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// toJson encodes the value for a nullable JSON column. Nil pointers result in SQL NULL.
func toJson[T any](value *T) (datatypes.JSON, error) {
	if value == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(bytes), nil
}
