package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/autodrive/internal/actuation"
)

// LogSink is an actuation sink that keeps every applied command and
// optionally writes each one to w as a JSON line.
type LogSink struct {
	mu       sync.Mutex
	w        io.Writer
	commands []actuation.Command
}

// NewLogSink creates a sink. A nil w only keeps commands in memory.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

// Apply implements actuation.Sink.
func (s *LogSink) Apply(ctx context.Context, cmd actuation.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, cmd)
	if s.w == nil {
		return nil
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Commands returns a copy of the commands applied so far.
func (s *LogSink) Commands() []actuation.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]actuation.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Last returns the most recent command.
func (s *LogSink) Last() (actuation.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return actuation.Command{}, false
	}
	return s.commands[len(s.commands)-1], true
}
