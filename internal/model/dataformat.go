package model

import (
	"fmt"
	"strings"
)

// DataFormat selects how a request body is encoded.
type DataFormat int

const (
	// DataFormatNone means the request carries no body.
	DataFormatNone DataFormat = iota

	// DataFormatForm encodes the body as application/x-www-form-urlencoded.
	DataFormatForm

	// DataFormatJSON encodes the body as application/json.
	DataFormatJSON
)

// String returns the configuration name of the format.
func (f DataFormat) String() string {
	switch f {
	case DataFormatNone:
		return "none"
	case DataFormatForm:
		return "form"
	case DataFormatJSON:
		return "json"
	default:
		return fmt.Sprintf("DataFormat(%d)", int(f))
	}
}

// Valid reports whether f is one of the known formats.
func (f DataFormat) Valid() bool {
	return f >= DataFormatNone && f <= DataFormatJSON
}

// ContentType returns the Content-Type header value for bodies in this format.
func (f DataFormat) ContentType() string {
	switch f {
	case DataFormatForm:
		return "application/x-www-form-urlencoded"
	case DataFormatJSON:
		return "application/json"
	default:
		return ""
	}
}

// ParseDataFormat parses a format name as used in configuration files.
// The empty string and "none" both mean DataFormatNone.
func ParseDataFormat(s string) (DataFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DataFormatNone, nil
	case "form":
		return DataFormatForm, nil
	case "json":
		return DataFormatJSON, nil
	default:
		return DataFormatNone, fmt.Errorf("%w: %q", ErrUnknownDataFormat, s)
	}
}
