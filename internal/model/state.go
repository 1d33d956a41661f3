package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// RequestState is the serializable form of a Request used by checkpoints.
// The body is stored already encoded, so any payload type survives a round
// trip as long as it could be encoded in the first place.
type RequestState struct {
	URL        string              `yaml:"url"`
	Method     string              `yaml:"method"`
	Headers    map[string][]string `yaml:"headers,omitempty"`
	Cookies    map[string]string   `yaml:"cookies,omitempty"`
	Params     map[string][]string `yaml:"params,omitempty"`
	DataFormat string              `yaml:"data_format,omitempty"`
	Body       string              `yaml:"body,omitempty"`
	Timeout    time.Duration       `yaml:"timeout,omitempty"`
	Generation int                 `yaml:"generation"`
	Retries    int                 `yaml:"retries,omitempty"`
}

// State returns the serializable form of r.
func (r *Request) State() (RequestState, error) {
	body, err := r.Body()
	if err != nil {
		return RequestState{}, err
	}

	s := RequestState{
		URL:        r.URL(),
		Method:     r.method,
		Timeout:    r.timeout,
		Generation: r.generation,
		Retries:    r.retries,
		Body:       string(body),
	}
	if r.dataFormat != DataFormatNone {
		s.DataFormat = r.dataFormat.String()
	}
	if len(r.headers) > 0 {
		s.Headers = r.Headers()
	}
	if len(r.cookies) > 0 {
		s.Cookies = r.Cookies()
	}
	if len(r.params) > 0 {
		s.Params = r.Params()
	}
	return s, nil
}

// RequestFromState rebuilds a Request from its serialized form.
func RequestFromState(s RequestState) (*Request, error) {
	format, err := ParseDataFormat(s.DataFormat)
	if err != nil {
		return nil, err
	}

	opts := []RequestOption{
		WithMethod(s.Method),
		WithTimeout(s.Timeout),
		WithGeneration(s.Generation),
		WithParams(url.Values(s.Params)),
	}
	for k, vs := range s.Headers {
		for _, v := range vs {
			opts = append(opts, WithHeader(k, v))
		}
	}
	for k, v := range s.Cookies {
		opts = append(opts, WithCookie(k, v))
	}
	switch format {
	case DataFormatForm:
		opts = append(opts, WithForm(s.Body))
	case DataFormatJSON:
		opts = append(opts, WithJSON(json.RawMessage(s.Body)))
	}

	r, err := NewRequest(s.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore request %q: %w", s.URL, err)
	}
	if s.Retries < 0 {
		return nil, fmt.Errorf("restore request %q: negative retry count", s.URL)
	}
	r.retries = s.Retries
	return r, nil
}
