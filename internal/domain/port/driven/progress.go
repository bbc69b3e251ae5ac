package driven

// Progress reports how many critique batches have been traversed.
// Implementations must be safe for concurrent Advance calls.
type Progress interface {
	Start(total int)
	Advance()
	Finish()
}

// NopProgress discards all progress updates.
type NopProgress struct{}

func (NopProgress) Start(int) {}
func (NopProgress) Advance()  {}
func (NopProgress) Finish()   {}
