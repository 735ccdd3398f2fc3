package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobSkipped is returned when another instance holds the job lock
	ErrJobSkipped = errors.New("job skipped: lock held elsewhere")
)
