package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/rathrio/log-slurping/internal/model"
)

// LineSource yields lines in order with terminators stripped. It has the
// method set of *bufio.Scanner.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// sliceSource serves lines from memory.
type sliceSource struct {
	lines []string
	pos   int
}

// Lines returns a LineSource over an in-memory slice.
func Lines(lines []string) LineSource {
	return &sliceSource{lines: lines, pos: -1}
}

func (s *sliceSource) Scan() bool {
	if s.pos+1 >= len(s.lines) {
		s.pos = len(s.lines)
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Text() string { return s.lines[s.pos] }
func (s *sliceSource) Err() error   { return nil }

// ReaderSource reads lines of any length from an io.Reader. Unlike
// bufio.Scanner it has no maximum line size; a final line without a newline
// is still returned.
type ReaderSource struct {
	r    *bufio.Reader
	line string
	err  error
}

// NewReaderSource reads from r through a buffer of the given size.
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	return &ReaderSource{r: bufio.NewReaderSize(r, size)}
}

func (s *ReaderSource) Scan() bool {
	if s.err != nil {
		return false
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		s.err = err
		if err != io.EOF || line == "" {
			return false
		}
	}
	line = strings.TrimSuffix(line, "\n")
	s.line = strings.TrimSuffix(line, "\r")
	return true
}

func (s *ReaderSource) Text() string { return s.line }

func (s *ReaderSource) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// ChanSource is a LineSource fed by a channel of raw lines. Scan blocks until
// a line arrives and returns false once the channel is closed.
type ChanSource struct {
	ch   <-chan model.RawLine
	line model.RawLine
}

// NewChanSource wraps ch. The producer closes ch to end the stream.
func NewChanSource(ch <-chan model.RawLine) *ChanSource {
	return &ChanSource{ch: ch}
}

func (s *ChanSource) Scan() bool {
	line, ok := <-s.ch
	if !ok {
		return false
	}
	s.line = line
	return true
}

func (s *ChanSource) Text() string { return s.line.Text }
func (s *ChanSource) Err() error   { return nil }

// End returns the offset just past the last line scanned.
func (s *ChanSource) End() int64 { return s.line.End }
