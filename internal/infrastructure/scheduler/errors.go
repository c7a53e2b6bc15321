package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrAlreadyRunning is returned when a scheduled pass is still in progress
	ErrAlreadyRunning = errors.New("scheduled discovery already in progress")
)
