package domain

import "errors"

var (
	ErrScheduleNotFound = errors.New("schedule_not_found")
	ErrInvalidSchedule  = errors.New("invalid_schedule")
)
