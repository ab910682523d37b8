// Package mode defines the scoring strategies for similarity search.
package mode

// Mode is the scoring strategy.
type Mode string

// Scoring mode constants.
const (
	// Content scores against the raw post content space.
	Content   Mode = "content"
	Reasoning Mode = "reasoning"
	Summary   Mode = "summary"
	// Average combines the available per-space scores by (optionally
	// weighted) arithmetic mean.
	Average Mode = "average"
	// Maximum takes the element-wise max across available spaces.
	Maximum Mode = "maximum"
	// Minimum takes the element-wise min across available spaces.
	Minimum Mode = "minimum"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	switch m {
	case Content, Reasoning, Summary, Average, Maximum, Minimum:
		return true
	}
	return false
}

// IsHybrid reports whether the mode combines multiple spaces. Hybrid
// modes require a vector query and cannot drive text-only search.
func (m Mode) IsHybrid() bool {
	switch m {
	case Average, Maximum, Minimum:
		return true
	}
	return false
}
