package grid

import "errors"

var (
	// ErrOutOfRange is returned when a location cannot be packed into a cell index.
	ErrOutOfRange = errors.New("grid: location out of packable range")

	// ErrChecksumMismatch is returned when a cell index from an older grid
	// generation is used after the grid was regenerated.
	ErrChecksumMismatch = errors.New("grid: cell index checksum mismatch")

	// ErrCapacityExceeded marks a truncated result.
	ErrCapacityExceeded = errors.New("grid: capacity exceeded")

	// ErrNotIndexed is returned for entities that have no occupancy yet.
	ErrNotIndexed = errors.New("grid: entity not indexed")

	// ErrNotContained is returned when a shape lies (partly) outside the grid bounds.
	ErrNotContained = errors.New("grid: shape not contained in bounds")
)
