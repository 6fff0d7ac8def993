package source

import "context"

// FakeSource is a test double that returns scripted trigger results.
type FakeSource struct {
	// Results are returned by successive WaitForTrigger calls. Once
	// exhausted, WaitForTrigger returns false.
	Results []bool

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// WaitError, if set, will be returned by WaitForTrigger.
	WaitError error

	// OnWait, if set, is called at the start of each WaitForTrigger with
	// the zero-based call index.
	OnWait func(call int)

	Connected bool
	Closed    bool
	// Calls counts WaitForTrigger calls.
	Calls int
}

// NewFakeSource creates a FakeSource with the given results.
func NewFakeSource(results ...bool) *FakeSource {
	return &FakeSource{Results: results}
}

func (f *FakeSource) String() string { return "fake" }

// Connect records the connection.
func (f *FakeSource) Connect(ctx context.Context) error {
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.Connected = true
	return nil
}

// WaitForTrigger returns the next scripted result.
func (f *FakeSource) WaitForTrigger(ctx context.Context) (bool, error) {
	i := f.Calls
	f.Calls++
	if f.OnWait != nil {
		f.OnWait(i)
	}
	if f.WaitError != nil {
		return false, f.WaitError
	}
	if i >= len(f.Results) {
		return false, nil
	}
	return f.Results[i], nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}
