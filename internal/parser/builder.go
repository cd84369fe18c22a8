package parser

import (
	"time"

	"github.com/rathrio/log-slurping/internal/model"
)

// RecordBuilder accumulates the fields of one block. Every setter overwrites
// the previous value, so the last assignment in a block wins.
type RecordBuilder struct {
	id          *string
	messageType *string
	remoteID    *string
	server      *string
	timestamp   *time.Time
}

func (b *RecordBuilder) SetID(v string)           { b.id = &v }
func (b *RecordBuilder) SetMessageType(v string)  { b.messageType = &v }
func (b *RecordBuilder) SetRemoteID(v string)     { b.remoteID = &v }
func (b *RecordBuilder) SetServer(v string)       { b.server = &v }
func (b *RecordBuilder) SetTimestamp(v time.Time) { b.timestamp = &v }

// Empty reports whether nothing has been captured yet.
func (b *RecordBuilder) Empty() bool {
	return b.id == nil && b.messageType == nil && b.remoteID == nil &&
		b.server == nil && b.timestamp == nil
}

// Build returns the finished record, or an *IncompleteRecordError naming
// every field that was never set.
func (b *RecordBuilder) Build() (model.Record, error) {
	var missing []string
	if b.id == nil {
		missing = append(missing, "id")
	}
	if b.messageType == nil {
		missing = append(missing, fieldMessageType)
	}
	if b.remoteID == nil {
		missing = append(missing, fieldRemoteID)
	}
	if b.server == nil {
		missing = append(missing, fieldServer)
	}
	if b.timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return model.Record{}, &IncompleteRecordError{Missing: missing}
	}

	return model.Record{
		ID:          *b.id,
		MessageType: *b.messageType,
		RemoteID:    *b.remoteID,
		Server:      *b.server,
		Timestamp:   *b.timestamp,
	}, nil
}
