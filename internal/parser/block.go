package parser

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/rathrio/log-slurping/internal/model"
)

// BlockParser turns a stream of lines into a stream of Records, one per
// block. A block opens with a timestamp line and closes with an
// "<word> --- END TRANSMITTED" line; the lines in between carry the fields.
//
// A BlockParser reads its source exactly once, one line at a time, and is not
// safe for concurrent use.
type BlockParser struct {
	src  LineSource
	loc  *time.Location
	line int

	// resync is set after a malformed start marker, or up front for a source
	// opened mid-file: lines are discarded until the next start marker or
	// the open block's end marker.
	resync bool
	done   bool
}

// Option configures a BlockParser.
type Option func(*BlockParser)

// WithLocation sets the time zone start-marker timestamps are read in.
// The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *BlockParser) { p.loc = loc }
}

// WithResync discards everything before the first block boundary. Use it
// when the source may begin inside a block, such as a file read from an
// arbitrary offset.
func WithResync() Option {
	return func(p *BlockParser) { p.resync = true }
}

// New returns a BlockParser reading from src.
func New(src LineSource, opts ...Option) *BlockParser {
	p := &BlockParser{src: src, loc: time.Local}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Line returns the number of lines consumed so far.
func (p *BlockParser) Line() int { return p.line }

// Next returns the next complete record.
//
// At the end of input it returns io.EOF, or a *TruncatedBlockError if the
// input stopped inside a block. Per-block failures are reported as
// *MalformedTimestampError or *IncompleteRecordError; the parser stays usable
// after them and the following call resumes with the next block.
func (p *BlockParser) Next() (model.Record, error) {
	if p.done {
		return model.Record{}, io.EOF
	}

	var b RecordBuilder
	for p.src.Scan() {
		p.line++
		line := p.src.Text()

		if p.resync {
			switch {
			case endRe.MatchString(line):
				p.resync = false
				continue
			case startRe.MatchString(line):
				p.resync = false
			default:
				continue
			}
		}

		if endRe.MatchString(line) {
			r, err := b.Build()
			var incomplete *IncompleteRecordError
			if errors.As(err, &incomplete) {
				incomplete.Line = p.line
			}
			return r, err
		}

		if m := startRe.FindStringSubmatch(line); m != nil {
			ts, err := time.ParseInLocation(timeLayout, m[1]+" "+m[2], p.loc)
			if err != nil {
				p.resync = true
				return model.Record{}, &MalformedTimestampError{Line: p.line, Text: m[0], Err: err}
			}
			b.SetTimestamp(ts)
			continue
		}

		// Both checks run on the same line.
		if m := idRe.FindStringSubmatch(line); m != nil {
			b.SetID(m[1])
		}
		if m := assignRe.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case fieldMessageType:
				b.SetMessageType(m[2])
			case fieldRemoteID:
				b.SetRemoteID(m[2])
			case fieldServer:
				b.SetServer(m[2])
			}
		}
	}

	p.done = true
	if err := p.src.Err(); err != nil {
		return model.Record{}, fmt.Errorf("reading line %d: %w", p.line+1, err)
	}
	if !b.Empty() {
		return model.Record{}, &TruncatedBlockError{Line: p.line}
	}
	return model.Record{}, io.EOF
}

// Records iterates over the remaining records. Per-block errors are yielded
// with a zero Record; iteration stops at the end of input.
func (p *BlockParser) Records() iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		for {
			r, err := p.Next()
			if err == io.EOF {
				return
			}
			if !yield(r, err) {
				return
			}
		}
	}
}
