package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Error kinds, used as metric labels and in log lines.
const (
	KindMalformedTimestamp = "malformed_timestamp"
	KindIncompleteRecord   = "incomplete_record"
	KindTruncatedBlock     = "truncated_block"
)

// MalformedTimestampError is returned when a start marker carries a timestamp
// that does not parse as MM/DD/YYYY HH:MM:SS.
type MalformedTimestampError struct {
	Line int    // 1-based line number of the start marker
	Text string // captured timestamp text
	Err  error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("line %d: malformed timestamp %q: %v", e.Line, e.Text, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error { return e.Err }

// IncompleteRecordError is returned when a block ends before every required
// field was assigned.
type IncompleteRecordError struct {
	Line    int      // 1-based line number of the end marker, 0 if unknown
	Missing []string // missing fields, in record order
}

func (e *IncompleteRecordError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("incomplete record: missing %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("line %d: incomplete record: missing %s", e.Line, strings.Join(e.Missing, ", "))
}

// TruncatedBlockError reports that the line source ended inside a block. It
// unwraps to io.EOF, so callers that only look for the end of input still stop.
type TruncatedBlockError struct {
	Line int // number of lines consumed
}

func (e *TruncatedBlockError) Error() string {
	return fmt.Sprintf("input ended mid-block after line %d", e.Line)
}

func (e *TruncatedBlockError) Unwrap() error { return io.EOF }

// Kind classifies a per-block error, looking through wrapping. It returns ""
// for anything else.
func Kind(err error) string {
	var (
		malformed  *MalformedTimestampError
		incomplete *IncompleteRecordError
		truncated  *TruncatedBlockError
	)
	switch {
	case errors.As(err, &malformed):
		return KindMalformedTimestamp
	case errors.As(err, &incomplete):
		return KindIncompleteRecord
	case errors.As(err, &truncated):
		return KindTruncatedBlock
	default:
		return ""
	}
}
