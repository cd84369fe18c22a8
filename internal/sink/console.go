package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
)

// ---------------------------------------------------------------------------
// Text Sink (colorized terminal output)
// ---------------------------------------------------------------------------

// textTimeLayout renders timestamps with their zone offset, e.g.
// "2023-01-02 03:04:05 +01:00".
const textTimeLayout = "2006-01-02 15:04:05 -07:00"

var (
	styleTime   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleID     = lipgloss.NewStyle().Bold(true)
	styleRemote = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleServer = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)

	// Message types get a stable color picked from this palette.
	typePalette = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),  // green
		lipgloss.NewStyle().Foreground(lipgloss.Color("220")), // yellow
		lipgloss.NewStyle().Foreground(lipgloss.Color("171")), // magenta
		lipgloss.NewStyle().Foreground(lipgloss.Color("208")), // orange
		lipgloss.NewStyle().Foreground(lipgloss.Color("75")),  // blue
	}
)

// TextSink prints one colorized line per record.
type TextSink struct {
	mu      sync.Mutex
	w       io.Writer
	metrics *metrics.Metrics
}

// NewTextSink returns a Sink that writes colorized text to w.
func NewTextSink(w io.Writer, m *metrics.Metrics) *TextSink {
	return &TextSink{w: w, metrics: m}
}

func (s *TextSink) Write(_ context.Context, r model.Record) error {
	line := fmt.Sprintf("%s %s %s remote=%s server=%s",
		styleTime.Render(r.Timestamp.Format(textTimeLayout)),
		styleMessageType(r.MessageType),
		styleID.Render(r.ID),
		styleRemote.Render(r.RemoteID),
		styleServer.Render(r.Server),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, line); err != nil {
		s.metrics.SinkFailures.WithLabelValues(config.SinkText).Inc()
		return err
	}
	s.metrics.SinkWrites.WithLabelValues(config.SinkText).Inc()
	return nil
}

func (s *TextSink) Close() error { return nil }

func styleMessageType(t string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(t))
	style := typePalette[h.Sum32()%uint32(len(typePalette))]
	return style.Render(fmt.Sprintf("%-8s", t))
}

// ---------------------------------------------------------------------------
// JSON Sink (structured output for piping)
// ---------------------------------------------------------------------------

// JSONSink prints each record as a single JSON object per line.
type JSONSink struct {
	mu      sync.Mutex
	enc     *json.Encoder
	metrics *metrics.Metrics
}

// NewJSONSink returns a Sink that writes JSON lines to w.
func NewJSONSink(w io.Writer, m *metrics.Metrics) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w), metrics: m}
}

func (s *JSONSink) Write(_ context.Context, r model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(r); err != nil {
		s.metrics.SinkFailures.WithLabelValues(config.SinkJSON).Inc()
		return err
	}
	s.metrics.SinkWrites.WithLabelValues(config.SinkJSON).Inc()
	return nil
}

func (s *JSONSink) Close() error { return nil }
