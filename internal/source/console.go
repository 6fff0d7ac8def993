package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Prompt is printed before each wait for operator input.
const Prompt = "\nHit Enter to trigger: "

// ConsoleSource triggers on every line the operator enters. It is meant
// for manual testing.
type ConsoleSource struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan struct{}
	done  chan error
}

// NewConsoleSource reads lines from in and writes prompts to out
// (normally os.Stdin and os.Stdout).
func NewConsoleSource(in io.Reader, out io.Writer) *ConsoleSource {
	return &ConsoleSource{
		in:    in,
		out:   out,
		lines: make(chan struct{}),
		done:  make(chan error, 1),
	}
}

func (s *ConsoleSource) String() string {
	return "console"
}

// Connect starts reading input. Reads happen on their own goroutine so a
// cancelled context can end a wait that is blocked on the terminal.
func (s *ConsoleSource) Connect(ctx context.Context) error {
	s.once.Do(func() {
		go s.readLines()
	})
	return nil
}

func (s *ConsoleSource) readLines() {
	r := bufio.NewReader(s.in)
	for {
		_, err := r.ReadString('\n')
		if err != nil {
			// A partial line at EOF was never completed, so it doesn't count.
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.done <- err
			return
		}
		s.lines <- struct{}{}
	}
}

// WaitForTrigger prints the prompt and returns true once a line (possibly
// empty) has been entered. End of input returns false.
func (s *ConsoleSource) WaitForTrigger(ctx context.Context) (bool, error) {
	fmt.Fprint(s.out, Prompt)

	select {
	case <-s.lines:
		return true, nil
	case err := <-s.done:
		// Keep reporting the end to any further caller.
		s.done <- err
		if err != nil {
			return false, fmt.Errorf("read console: %w", err)
		}
		return false, nil
	case <-ctx.Done():
		return false, nil
	}
}

// Close is a no-op: the input stream belongs to the caller.
func (s *ConsoleSource) Close() error {
	return nil
}
