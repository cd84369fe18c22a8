package parser

import "regexp"

// Line patterns of the transmission log. They are compiled once and shared by
// every BlockParser; regexp.Regexp is safe for concurrent use.
var (
	// startRe matches the line opening a block, e.g. "01/02/2023 03:04:05".
	// Date and time are captured separately because \s may be any blank.
	startRe = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})\s(\d{2}:\d{2}:\d{2})`)

	// endRe matches the line closing a block, e.g. "abc123 --- END TRANSMITTED".
	endRe = regexp.MustCompile(`^\w+\s-+\sEND\sTRANSMITTED`)

	// idRe matches the identifier marker, e.g. "abc123 -- TRANSMITTED -- info".
	// The trailing blank is required.
	idRe = regexp.MustCompile(`^(\w+)\s-+\sTRANSMITTED\s-+\s`)

	// assignRe matches the first "name = value" pair anywhere on a line.
	assignRe = regexp.MustCompile(`(\w+)\s=\s(\S+)`)
)

// timeLayout is MM/DD/YYYY HH:MM:SS.
const timeLayout = "01/02/2006 15:04:05"

// Field names accepted from generic assignment lines.
const (
	fieldMessageType = "message_type"
	fieldRemoteID    = "remote_id"
	fieldServer      = "server"
)
