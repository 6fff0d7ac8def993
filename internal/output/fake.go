package output

// FakeOutput is a test double that records every level it is set to.
type FakeOutput struct {
	// Levels contains every level passed to Set, in order.
	Levels []float64

	// Current is the last level set (0 initially).
	Current float64

	// SetError, if set, will be returned by Set once FailAfter
	// successful calls have been made.
	SetError  error
	FailAfter int

	// Closed tracks if Close was called
	Closed bool

	// OnSet, if set, is called after each successful Set.
	OnSet func(level float64)

	calls int
}

// NewFakeOutput creates a FakeOutput idling at 0.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records level.
func (f *FakeOutput) Set(level float64) error {
	if f.Closed {
		return ErrClosed
	}
	if f.SetError != nil && f.calls >= f.FailAfter {
		return f.SetError
	}
	f.calls++
	f.Levels = append(f.Levels, level)
	f.Current = level
	if f.OnSet != nil {
		f.OnSet(level)
	}
	return nil
}

// Close marks the output as closed and drives it to 0.
func (f *FakeOutput) Close() error {
	f.Current = 0
	f.Closed = true
	return nil
}

// Transitions counts changes to and from 0 in the recorded levels,
// starting from an idle output.
func (f *FakeOutput) Transitions() (on, off int) {
	prev := 0.0
	for _, l := range f.Levels {
		switch {
		case prev == 0 && l != 0:
			on++
		case prev != 0 && l == 0:
			off++
		}
		prev = l
	}
	return on, off
}

// Reset clears recorded levels.
func (f *FakeOutput) Reset() {
	f.Levels = nil
	f.Current = 0
	f.Closed = false
	f.calls = 0
}
