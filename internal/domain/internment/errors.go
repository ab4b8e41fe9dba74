package internment

import "errors"

var (
	ErrNotFound           = errors.New("internment not found")
	ErrValidation         = errors.New("validation error")
	ErrDuplicateAuditDate = errors.New("a bed audit already exists for this date")
	ErrUnknownCriticality = errors.New("unknown criticality")
)
