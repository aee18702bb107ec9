package refresh

import (
	"fmt"
	"github.com/google/uuid"
)

// InactiveDatasetError is returned for refreshes of deactivated datasets. Nothing is modified in this case.
type InactiveDatasetError struct {
	DatasetID uuid.UUID
}

func (e *InactiveDatasetError) Error() string {
	return fmt.Sprintf("Dataset %s is inactive and can't be refreshed", e.DatasetID)
}

// ForbiddenError is returned when a user changes or refreshes a dataset owned by someone else, or watches a private one.
type ForbiddenError struct {
	DatasetID uuid.UUID
	UserID    uuid.UUID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("User %s is not allowed to access dataset %s", e.UserID, e.DatasetID)
}

type ConversionError struct {
	DatasetID uuid.UUID
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("Converting OSM data of dataset %s failed: %s", e.DatasetID, e.Err.Error())
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

type StatsComputationError struct {
	DatasetID uuid.UUID
	Err       error
}

func (e *StatsComputationError) Error() string {
	return fmt.Sprintf("Computing statistics of dataset %s failed: %s", e.DatasetID, e.Err.Error())
}

func (e *StatsComputationError) Unwrap() error {
	return e.Err
}
