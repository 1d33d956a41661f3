package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		capacity  uint
		errorRate float64
		wantM     uint
		wantK     uint
		wantErr   error
	}{
		{name: "1000 at 1%", capacity: 1000, errorRate: 0.01, wantM: 9586, wantK: 7},
		{name: "1 at 50%", capacity: 1, errorRate: 0.5, wantM: 2, wantK: 2},
		{name: "zero capacity", capacity: 0, errorRate: 0.01, wantErr: ErrInvalidCapacity},
		{name: "zero rate", capacity: 10, errorRate: 0, wantErr: ErrInvalidErrorRate},
		{name: "rate of one", capacity: 10, errorRate: 1, wantErr: ErrInvalidErrorRate},
		{name: "NaN rate", capacity: 10, errorRate: math.NaN(), wantErr: ErrInvalidErrorRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, k, err := Estimate(tt.capacity, tt.errorRate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m != tt.wantM || k != tt.wantK {
				t.Errorf("expected m=%d k=%d, got m=%d k=%d", tt.wantM, tt.wantK, m, k)
			}
		})
	}
}

func TestFilterAddTest(t *testing.T) {
	t.Parallel()

	f, err := New(100, 0.01)
	if err != nil {
		t.Fatal(err)
	}

	if f.Test("http://example.com/") {
		t.Error("empty filter should not contain anything")
	}
	f.Add("http://example.com/")
	if !f.Test("http://example.com/") {
		t.Error("added item should be present")
	}
	if f.Count() != 1 {
		t.Errorf("expected count 1, got %d", f.Count())
	}
}

func TestFilterTestAndAdd(t *testing.T) {
	t.Parallel()

	f, err := New(100, 0.01)
	if err != nil {
		t.Fatal(err)
	}

	if f.TestAndAdd("a") {
		t.Error("first TestAndAdd should report absent")
	}
	if !f.TestAndAdd("a") {
		t.Error("second TestAndAdd should report present")
	}
	if f.Count() != 1 {
		t.Errorf("duplicate add should not grow count, got %d", f.Count())
	}
}

// TestFilterCapacity fills the filter to capacity and checks the observed
// false-positive rate on unseen items against the configured rate.
func TestFilterCapacity(t *testing.T) {
	t.Parallel()

	const (
		capacity  = 10000
		errorRate = 0.01
		samples   = 100000
	)

	f, err := New(capacity, errorRate)
	if err != nil {
		t.Fatal(err)
	}
	for i := range capacity {
		f.Add(fmt.Sprintf("http://seen.example/%d", i))
	}

	for i := range capacity {
		if !f.Test(fmt.Sprintf("http://seen.example/%d", i)) {
			t.Fatalf("false negative for item %d", i)
		}
	}

	var fp int
	for i := range samples {
		if f.Test(fmt.Sprintf("http://unseen.example/%d", i)) {
			fp++
		}
	}
	rate := float64(fp) / samples
	if rate > errorRate*2 || rate < errorRate/4 {
		t.Errorf("false-positive rate %.4f not consistent with %.4f", rate, errorRate)
	}

	est := f.EstimatedFalsePositiveRate()
	if math.Abs(est-errorRate) > errorRate/2 {
		t.Errorf("estimated rate %.4f far from %.4f at capacity", est, errorRate)
	}
}

func TestFilterOverCapacity(t *testing.T) {
	t.Parallel()

	f, err := New(100, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 100 {
		f.Add(fmt.Sprintf("item-%d", i))
	}
	atCap := f.EstimatedFalsePositiveRate()
	for i := 100; i < 400; i++ {
		f.Add(fmt.Sprintf("item-%d", i))
	}
	if f.EstimatedFalsePositiveRate() <= atCap {
		t.Error("false-positive estimate should grow past capacity")
	}
}

func TestFilterBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	f, err := New(500, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 200 {
		f.Add(fmt.Sprintf("item-%d", i))
	}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var g Filter
	if err := g.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Count() != f.Count() || g.BitCount() != f.BitCount() || g.HashCount() != f.HashCount() || g.Cap() != f.Cap() {
		t.Error("sizing should survive a round trip")
	}
	for i := range 1000 {
		item := fmt.Sprintf("item-%d", i)
		if f.Test(item) != g.Test(item) {
			t.Fatalf("decision for %q differs after round trip", item)
		}
	}
}

// encodeRaw builds a blob with the given header fields followed by words
// zero-valued bit words.
func encodeRaw(capacity, count uint64, errorRate float64, m, k, length uint64, words int) []byte {
	buf := make([]byte, 0, headerSize+bitsHeaderSize+8*words)
	buf = append(buf, magic[:]...)
	for _, v := range []uint64{capacity, count, math.Float64bits(errorRate), m, k, length} {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	return append(buf, make([]byte, 8*words)...)
}

func TestFilterUnmarshalCorrupt(t *testing.T) {
	t.Parallel()

	f, err := New(10, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	good, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad magic", data: append([]byte("XXXX"), good[4:]...)},
		{name: "truncated", data: good[:len(good)-1]},
		{name: "trailing bytes", data: append(append([]byte{}, good...), 0)},
		{name: "bit count overflows word count", data: encodeRaw(10, 0, 0.01, math.MaxUint64, 3, math.MaxUint64, 0)},
		{name: "too many bits", data: encodeRaw(10, 0, 0.01, maxBits+64, 3, maxBits+64, 0)},
		{name: "zero bits", data: encodeRaw(10, 0, 0.01, 0, 3, 0, 0)},
		{name: "huge hash count", data: encodeRaw(10, 0, 0.01, 64, 1<<40, 64, 1)},
		{name: "zero hashes", data: encodeRaw(10, 0, 0.01, 64, 0, 64, 1)},
		{name: "bitset length differs", data: encodeRaw(10, 0, 0.01, 64, 3, 128, 1)},
		{name: "zero capacity", data: encodeRaw(0, 0, 0.01, 64, 3, 64, 1)},
		{name: "error rate out of range", data: encodeRaw(10, 0, 1.5, 64, 3, 64, 1)},
		{name: "count past bit count", data: encodeRaw(10, 65, 0.01, 64, 3, 64, 1)},
		{name: "count past set bits", data: encodeRaw(10, 5, 0.01, 64, 3, 64, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, _ := New(10, 0.1)
			target.Add("keep")
			if err := target.UnmarshalBinary(tt.data); !errors.Is(err, ErrCorruptData) {
				t.Fatalf("expected ErrCorruptData, got %v", err)
			}
			if !target.Test("keep") || target.Count() != 1 {
				t.Error("filter should be unchanged after a failed unmarshal")
			}
		})
	}
}

func TestFilterUnmarshalEmpty(t *testing.T) {
	t.Parallel()

	var f Filter
	if err := f.UnmarshalBinary(encodeRaw(10, 0, 0.01, 64, 3, 64, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Test("http://x/a") || f.Count() != 0 || f.BitCount() != 64 || f.HashCount() != 3 {
		t.Error("decoded empty filter should report nothing present")
	}
	f.Add("http://x/a")
	if !f.Test("http://x/a") {
		t.Error("decoded filter should record new items")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	s, err := Describe(1000000, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"1.7 MiB", "10 hashes", "1000000 URLs", "never crawled"} {
		if !strings.Contains(s, want) {
			t.Errorf("description %q should contain %q", s, want)
		}
	}

	if _, err := Describe(0, 0.1); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
}
