package model

import "time"

// Record is one finalized transmission block.
type Record struct {
	ID          string    `json:"id"`
	MessageType string    `json:"message_type"`
	RemoteID    string    `json:"remote_id"` // remote counterpart, used as the Kafka key
	Server      string    `json:"server"`    // local/serving endpoint
	Timestamp   time.Time `json:"timestamp"` // from the block's start marker, local time
}

// RawLine is a single line read from a source file.
type RawLine struct {
	Text   string
	Source string // originating file path

	// Byte offsets of the line in Source: where it starts and where the
	// next line starts.
	Offset int64
	End    int64
}
