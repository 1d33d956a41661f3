package model

import "errors"

// Request construction errors.
var (
	// ErrInvalidURL is returned when a request URL cannot be parsed, is not
	// absolute, or does not use the http or https scheme.
	ErrInvalidURL = errors.New("invalid request URL")

	// ErrUnknownDataFormat is returned for data formats other than form and json.
	ErrUnknownDataFormat = errors.New("unknown data format")

	// ErrUnsupportedData is returned when a request body cannot be encoded
	// in the requested data format.
	ErrUnsupportedData = errors.New("unsupported request data")

	// ErrInvalidGeneration is returned when a negative generation is requested.
	ErrInvalidGeneration = errors.New("invalid generation: must be non-negative")
)
