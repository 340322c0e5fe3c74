package lamp

import "errors"

var (
	// ErrLampNotFound indicates a lookup for an unknown lamp id.
	ErrLampNotFound = errors.New("lamp not found")

	// ErrSensorNotFound indicates a lookup for an unknown sensor id.
	ErrSensorNotFound = errors.New("sensor not found")
)
