package bloom

import "errors"

var (
	// ErrInvalidCapacity is returned when the capacity is zero.
	ErrInvalidCapacity = errors.New("bloom capacity must be greater than zero")

	// ErrInvalidErrorRate is returned when the error rate is not in (0, 1).
	ErrInvalidErrorRate = errors.New("bloom error rate must be between 0 and 1 (exclusive)")

	// ErrCorruptData is returned by UnmarshalBinary for malformed input.
	ErrCorruptData = errors.New("corrupt bloom filter data")
)
