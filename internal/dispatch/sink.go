package dispatch

import (
	"fmt"
	"io"
	"sync"

	"github.com/hookworks/hookrun/internal/supervisor"
)

// liveSink streams hook output to a writer as it arrives, prefixed with the
// instance key so interleaved hooks stay attributable. Lines from concurrent
// hooks may interleave, but each line is written whole.
type liveSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func newLiveSink(writer io.Writer) *liveSink {
	return &liveSink{writer: writer}
}

func (s *liveSink) Line(instanceKey string, line supervisor.OutputLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.writer, "[%s] %s\n", instanceKey, line.Text)
}
