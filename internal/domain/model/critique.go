package model

import "time"

// CritiqueBatch is a top-level comment on the launch post that opens a round
// of critiques. It is discovered once and never mutated.
type CritiqueBatch struct {
	URL    CommentURL
	Author string
	Posted time.Time
	// Linked holds the critique permalinks referenced by the batch body, in
	// order of first appearance.
	Linked []CommentURL
}

// CritiqueRecord is one row of the final report.
type CritiqueRecord struct {
	BatchURL    CommentURL
	CritiqueURL CommentURL
	Author      string
	Posted      time.Time
	Text        string
	Words       int // Reported length, following the platform's word count.
	Chars       int
	Source      RecordSource
}

// IsEmpty reports whether the critique has no countable content, which is the
// case for deleted or blanked comments.
func (r CritiqueRecord) IsEmpty() bool {
	return r.Words == 0
}

// RunSummary aggregates the outcome of one run so operators can judge
// completeness without re-running in verbose mode.
type RunSummary struct {
	Batches           int
	Critiques         int
	ValidCritiques    int
	EmptyCritiques    int
	DuplicatesDropped int
	FetchFailures     int
	ParseFailures     int
	CommentsFetched   int
}

// Skipped returns the number of items excluded from the report due to errors.
func (s RunSummary) Skipped() int {
	return s.FetchFailures + s.ParseFailures
}
