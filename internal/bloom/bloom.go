package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	bbloom "github.com/bits-and-blooms/bloom/v3"
)

// magic prefixes the binary encoding of a Filter.
var magic = [4]byte{'B', 'L', 'M', '2'}

const (
	// headerSize is magic + capacity + count + error rate.
	headerSize = 4 + 8*3
	// bitsHeaderSize is the bits-and-blooms prefix: bits, hashes and the
	// bitset length.
	bitsHeaderSize = 8 * 3

	// maxBits bounds a decoded filter at 128 GiB of bits.
	maxBits = 1 << 40
	// maxHashes bounds the hash count of a decoded filter. Estimate never
	// needs more than 64 for a representable error rate.
	maxHashes = 64
)

// Filter is a Bloom filter that remembers its sizing and how many items it
// recorded. It is not safe for concurrent use; callers serialize access.
type Filter struct {
	bf        *bbloom.BloomFilter
	capacity  uint
	errorRate float64
	count     uint
}

// Estimate returns the number of bits m and hash functions k for a filter
// holding capacity items at the given false-positive rate.
func Estimate(capacity uint, errorRate float64) (m, k uint, err error) {
	if capacity == 0 {
		return 0, 0, ErrInvalidCapacity
	}
	if !(errorRate > 0 && errorRate < 1) {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidErrorRate, errorRate)
	}
	m, k = bbloom.EstimateParameters(capacity, errorRate)
	return m, k, nil
}

// New returns an empty Filter sized for capacity items at errorRate.
func New(capacity uint, errorRate float64) (*Filter, error) {
	m, k, err := Estimate(capacity, errorRate)
	if err != nil {
		return nil, err
	}
	return &Filter{
		bf:        bbloom.New(m, k),
		capacity:  capacity,
		errorRate: errorRate,
	}, nil
}

// Add records item.
func (f *Filter) Add(item string) {
	f.TestAndAdd(item)
}

// Test reports whether item may have been added. A false result is
// definitive.
func (f *Filter) Test(item string) bool {
	return f.bf.TestString(item)
}

// TestAndAdd records item and reports whether it was already present
// (or a false positive). The count only grows when the item was absent,
// so every counted item set at least one bit.
func (f *Filter) TestAndAdd(item string) bool {
	present := f.bf.TestAndAddString(item)
	if !present {
		f.count++
	}
	return present
}

// Count returns the number of items recorded.
func (f *Filter) Count() uint {
	return f.count
}

// Cap returns the configured capacity.
func (f *Filter) Cap() uint {
	return f.capacity
}

// ErrorRate returns the configured false-positive rate.
func (f *Filter) ErrorRate() float64 {
	return f.errorRate
}

// BitCount returns the size of the bit array.
func (f *Filter) BitCount() uint {
	return f.bf.Cap()
}

// HashCount returns the number of hash positions per item.
func (f *Filter) HashCount() uint {
	return f.bf.K()
}

// EstimatedFalsePositiveRate returns (1 - e^(-kn/m))^k for the current
// count n. It exceeds the configured rate once Count passes Cap.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	k := float64(f.bf.K())
	return math.Pow(1-math.Exp(-k*float64(f.count)/float64(f.bf.Cap())), k)
}

// Describe explains the memory and accuracy trade-off of a filter sized for
// capacity items at errorRate.
func Describe(capacity uint, errorRate float64) (string, error) {
	m, k, err := Estimate(capacity, errorRate)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"bloom filter uses %s (%d bits, %d hashes) for %d URLs at a %.4g%% false-positive rate; "+
			"a false positive skips a URL that was never crawled, and the rate grows once more than %d URLs are recorded",
		formatBytes(uint64(m+7)/8), m, k, capacity, errorRate*100, capacity), nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// MarshalBinary implements encoding.BinaryMarshaler. The sizing header is
// followed by the bits-and-blooms encoding of the bit array.
func (f *Filter) MarshalBinary() ([]byte, error) {
	bits, err := f.bf.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode bloom bits: %w", err)
	}
	buf := make([]byte, headerSize, headerSize+len(bits))
	copy(buf, magic[:])
	binary.BigEndian.PutUint64(buf[4:], uint64(f.capacity))
	binary.BigEndian.PutUint64(buf[12:], uint64(f.count))
	binary.BigEndian.PutUint64(buf[20:], math.Float64bits(f.errorRate))
	return append(buf, bits...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The sizing is
// checked before any bits are allocated, so a corrupt blob fails here
// instead of on the first lookup. f is left unchanged on error.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize+bitsHeaderSize || [4]byte(data[:4]) != magic {
		return ErrCorruptData
	}
	capacity := binary.BigEndian.Uint64(data[4:])
	count := binary.BigEndian.Uint64(data[12:])
	errorRate := math.Float64frombits(binary.BigEndian.Uint64(data[20:]))

	bits := data[headerSize:]
	m := binary.BigEndian.Uint64(bits[0:])
	k := binary.BigEndian.Uint64(bits[8:])
	length := binary.BigEndian.Uint64(bits[16:])

	switch {
	case capacity == 0 || capacity > maxBits:
		return fmt.Errorf("%w: capacity %d", ErrCorruptData, capacity)
	case !(errorRate > 0 && errorRate < 1):
		return fmt.Errorf("%w: error rate %v", ErrCorruptData, errorRate)
	case m == 0 || m > maxBits || length != m:
		return fmt.Errorf("%w: %d bits in a bitset of %d", ErrCorruptData, m, length)
	case k == 0 || k > maxHashes || k > m:
		return fmt.Errorf("%w: %d hashes", ErrCorruptData, k)
	case count > m:
		return fmt.Errorf("%w: count %d exceeds %d bits", ErrCorruptData, count, m)
	}

	nwords := m / 64
	if m%64 != 0 {
		nwords++
	}
	if uint64(len(bits)-bitsHeaderSize) != nwords*8 {
		return fmt.Errorf("%w: expected %d words", ErrCorruptData, nwords)
	}

	var bf bbloom.BloomFilter
	if err := bf.UnmarshalBinary(bits); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if set := bf.BitSet().Count(); uint64(set) < count {
		return fmt.Errorf("%w: count %d with %d bits set", ErrCorruptData, count, set)
	}

	*f = Filter{
		bf:        &bf,
		capacity:  uint(capacity),
		errorRate: errorRate,
		count:     uint(count),
	}
	return nil
}
