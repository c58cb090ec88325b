package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrCorruptRecord         = errors.New("corrupt catalog record")
	ErrUnsupportedDatasource = errors.New("unsupported datasource type")
)
