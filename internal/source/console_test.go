package source

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestConsoleSourceLines(t *testing.T) {
	var out bytes.Buffer
	s := NewConsoleSource(strings.NewReader("\nhello\n\n"), &out)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Three completed lines, including empty ones, are three triggers.
	for i := 0; i < 3; i++ {
		ok, err := s.WaitForTrigger(context.Background())
		if err != nil || !ok {
			t.Fatalf("line %d: got (%v, %v), want (true, nil)", i, ok, err)
		}
	}

	ok, err := s.WaitForTrigger(context.Background())
	if err != nil || ok {
		t.Errorf("at EOF: got (%v, %v), want (false, nil)", ok, err)
	}

	if got := strings.Count(out.String(), "Hit Enter to trigger: "); got != 4 {
		t.Errorf("expected 4 prompts, got %d in %q", got, out.String())
	}
}

func TestConsoleSourcePartialLineAtEOF(t *testing.T) {
	s := NewConsoleSource(strings.NewReader("no newline"), io.Discard)
	s.Connect(context.Background())

	ok, err := s.WaitForTrigger(context.Background())
	if err != nil || ok {
		t.Errorf("got (%v, %v), want (false, nil)", ok, err)
	}
	// End of input is sticky.
	ok, _ = s.WaitForTrigger(context.Background())
	if ok {
		t.Error("expected false on repeated call after EOF")
	}
}

func TestConsoleSourceContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewConsoleSource(pr, io.Discard)
	s.Connect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := s.WaitForTrigger(ctx)
	if ok || err != nil {
		t.Errorf("got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestConsoleSourceBlocksUntilLine(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewConsoleSource(pr, io.Discard)
	s.Connect(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		pw.Write([]byte("\n"))
	}()

	start := time.Now()
	ok, err := s.WaitForTrigger(context.Background())
	if err != nil || !ok {
		t.Fatalf("got (%v, %v), want (true, nil)", ok, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned before a line was entered")
	}
}

func TestConsoleSourceReadError(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewConsoleSource(pr, io.Discard)
	s.Connect(context.Background())
	pw.CloseWithError(io.ErrUnexpectedEOF)

	ok, err := s.WaitForTrigger(context.Background())
	if ok || err == nil {
		t.Errorf("got (%v, %v), want (false, error)", ok, err)
	}
}
