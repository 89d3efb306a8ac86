package apperrors

import "errors"

var (
	ErrUnknownKPI       = errors.New("unknown kpi")
	ErrUnknownDimension = errors.New("unknown scope dimension")
	ErrSlotsMissing     = errors.New("required slots are not resolved")
)
