package filter

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/nao1215/crawlkit/internal/bloom"
	"github.com/nao1215/crawlkit/internal/checkpoint"
)

const (
	// StoreExact names the map-backed store.
	StoreExact = "exact"
	// StoreBloom names the Bloom-filter-backed store.
	StoreBloom = "bloom"
)

// Store records the identities accepted by a Crawled filter. Stores are
// not safe for concurrent use; the owning Crawled filter serializes access.
type Store interface {
	// Add records identity and reports whether it was newly added.
	Add(identity string) bool
	// Contains reports whether identity was recorded.
	Contains(identity string) bool
	// Len returns the number of recorded identities.
	Len() int
	// Kind returns StoreExact or StoreBloom.
	Kind() string

	encodeState(enc *checkpoint.Encoder) error
	decodeState(dec *checkpoint.Decoder) (func(), error)
}

// ExactStore is a Store backed by a map. It never reports false positives
// and grows with every identity recorded.
type ExactStore struct {
	seen map[string]struct{}
}

// NewExactStore returns an empty ExactStore.
func NewExactStore() *ExactStore {
	return &ExactStore{seen: make(map[string]struct{})}
}

// Add implements Store.
func (s *ExactStore) Add(identity string) bool {
	if _, ok := s.seen[identity]; ok {
		return false
	}
	s.seen[identity] = struct{}{}
	return true
}

// Contains implements Store.
func (s *ExactStore) Contains(identity string) bool {
	_, ok := s.seen[identity]
	return ok
}

// Len implements Store.
func (s *ExactStore) Len() int {
	return len(s.seen)
}

// Kind implements Store.
func (s *ExactStore) Kind() string {
	return StoreExact
}

func (s *ExactStore) encodeState(enc *checkpoint.Encoder) error {
	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return enc.Encode("state", ids)
}

func (s *ExactStore) decodeState(dec *checkpoint.Decoder) (func(), error) {
	var ids []string
	if err := dec.Decode("state", &ids); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return func() { s.seen = seen }, nil
}

// BloomStore is a Store backed by a Bloom filter. Memory is fixed at
// construction. Add may report an unseen identity as already recorded
// (a false positive); it never forgets a recorded one.
type BloomStore struct {
	bf *bloom.Filter
}

// NewBloomStore returns a BloomStore sized for capacity identities at the
// given false-positive rate.
func NewBloomStore(capacity uint, errorRate float64) (*BloomStore, error) {
	bf, err := bloom.New(capacity, errorRate)
	if err != nil {
		return nil, &ConfigError{Filter: "bloom store", Err: err}
	}
	return &BloomStore{bf: bf}, nil
}

// Add implements Store.
func (s *BloomStore) Add(identity string) bool {
	return !s.bf.TestAndAdd(identity)
}

// Contains implements Store.
func (s *BloomStore) Contains(identity string) bool {
	return s.bf.Test(identity)
}

// Len implements Store.
func (s *BloomStore) Len() int {
	return int(s.bf.Count()) //nolint:gosec // count is bounded by memory
}

// Kind implements Store.
func (s *BloomStore) Kind() string {
	return StoreBloom
}

// OverCapacity reports whether more identities were recorded than the
// store was sized for. The false-positive rate then exceeds the configured
// one.
func (s *BloomStore) OverCapacity() bool {
	return s.bf.Count() > s.bf.Cap()
}

// EstimatedFalsePositiveRate returns the current false-positive estimate.
func (s *BloomStore) EstimatedFalsePositiveRate() float64 {
	return s.bf.EstimatedFalsePositiveRate()
}

type bloomState struct {
	Capacity  uint    `yaml:"capacity"`
	ErrorRate float64 `yaml:"error_rate"`
	Bits      string  `yaml:"bits"`
}

func (s *BloomStore) encodeState(enc *checkpoint.Encoder) error {
	data, err := s.bf.MarshalBinary()
	if err != nil {
		return err
	}
	return enc.Encode("state", bloomState{
		Capacity:  s.bf.Cap(),
		ErrorRate: s.bf.ErrorRate(),
		Bits:      base64.StdEncoding.EncodeToString(data),
	})
}

func (s *BloomStore) decodeState(dec *checkpoint.Decoder) (func(), error) {
	var st bloomState
	if err := dec.Decode("state", &st); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(st.Bits)
	if err != nil {
		return nil, fmt.Errorf("decode bloom bits: %w", err)
	}
	var bf bloom.Filter
	if err := bf.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if bf.Cap() != st.Capacity || bf.ErrorRate() != st.ErrorRate {
		return nil, fmt.Errorf("%w: sizing %d/%v does not match the bits", bloom.ErrCorruptData, st.Capacity, st.ErrorRate)
	}
	return func() { s.bf = &bf }, nil
}
