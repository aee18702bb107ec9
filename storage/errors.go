package storage

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("Entity not found")
	ErrVersionConflict = errors.New("Dataset was modified concurrently")
	ErrTooManyWatchers = errors.New("Dataset is watched by other users and can't be deleted")
)
