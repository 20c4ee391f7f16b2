// internal/driver/ecr/sequence.go
package ecr

const (
	// SequenceMin is the first sequence number of a cycle
	SequenceMin = 0x20
	// SequenceMax is the last sequence number before wrapping
	SequenceMax = 0x7F
)

// SequenceCounter produces the per-packet sequence byte.
// It is not safe for concurrent use.
type SequenceCounter struct {
	value int
}

// NewSequenceCounter returns a counter seeded at SequenceMin
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{value: SequenceMin}
}

// Next advances the counter and returns the byte for the current packet
func (s *SequenceCounter) Next() byte {
	s.value++
	if s.value > SequenceMax {
		s.value = SequenceMin
	}
	return byte(s.value)
}

// Current returns the last value handed out
func (s *SequenceCounter) Current() byte {
	return byte(s.value)
}
