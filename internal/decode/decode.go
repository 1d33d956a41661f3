package decode

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned when an encoding name is not recognized
// by the WHATWG encoding index.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Decoder converts response bodies to text.
type Decoder interface {
	// Decode detects the encoding of body, using contentType as a hint,
	// and returns the decoded text together with the detected encoding name.
	Decode(body []byte, contentType string) (text string, encodingName string, err error)

	// DecodeAs decodes body with the named encoding, bypassing detection.
	DecodeAs(body []byte, encodingName string) (string, error)
}

// Charset is the default Decoder.
type Charset struct{}

// Decode implements Decoder.
func (Charset) Decode(body []byte, contentType string) (string, string, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	text, err := transformString(enc, body)
	if err != nil {
		return "", name, fmt.Errorf("decode %s body: %w", name, err)
	}
	return text, name, nil
}

// DecodeAs implements Decoder.
func (Charset) DecodeAs(body []byte, encodingName string) (string, error) {
	enc, err := lookup(encodingName)
	if err != nil {
		return "", err
	}
	text, err := transformString(enc, body)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", encodingName, err)
	}
	return text, nil
}

// Canonical returns the canonical WHATWG name for an encoding label,
// e.g. "latin1" becomes "windows-1252".
func Canonical(encodingName string) (string, error) {
	enc, err := lookup(encodingName)
	if err != nil {
		return "", err
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(encodingName)), nil //nolint:nilerr // label is valid, only the canonical name is unknown
	}
	return name, nil
}

func lookup(encodingName string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(encodingName))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encodingName)
	}
	return enc, nil
}

func transformString(enc encoding.Encoding, body []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
