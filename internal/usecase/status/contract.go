package status

// PostReader reads aggregate facts from the post snapshot.
type PostReader interface {
	Len() int
	AuthorPostCounts() map[string]int
	TimestampRange() (earliest, latest string)
}
