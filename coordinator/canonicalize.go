package coordinator

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"github.com/runledger/runledger/domain"
)

// payloadHash computes an order-independent digest over a batch's points:
// each point contributes a fixed-width (name, step, value_bits,
// client_ts_ms) tuple, the tuples are sorted, then hashed in that order so
// that retries carrying the same points in a different wire order still
// hash identically.
func payloadHash(points []domain.MetricPoint) [32]byte {
	tuples := make([][]byte, len(points))
	for i, p := range points {
		tuples[i] = encodeTuple(p)
	}
	sort.Slice(tuples, func(i, j int) bool {
		return compareBytes(tuples[i], tuples[j]) < 0
	})

	h := sha256.New()
	for _, t := range tuples {
		h.Write(t)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func encodeTuple(p domain.MetricPoint) []byte {
	buf := make([]byte, 0, len(p.Name)+1+8+8+8)
	buf = append(buf, []byte(p.Name)...)
	buf = append(buf, 0)

	var stepBytes [8]byte
	binary.BigEndian.PutUint64(stepBytes[:], uint64(p.Step))
	buf = append(buf, stepBytes[:]...)

	var valueBytes [8]byte
	binary.BigEndian.PutUint64(valueBytes[:], math.Float64bits(p.Value))
	buf = append(buf, valueBytes[:]...)

	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(p.Timestamp.UnixMilli()))
	buf = append(buf, tsBytes[:]...)

	return buf
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
