package parser

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuilderMissingFields(t *testing.T) {
	var b RecordBuilder
	if !b.Empty() {
		t.Error("expected new builder to be empty")
	}
	b.SetRemoteID("r")
	if b.Empty() {
		t.Error("expected builder with a field to be non-empty")
	}

	_, err := b.Build()
	var incomplete *IncompleteRecordError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteRecordError, got %v", err)
	}
	got := strings.Join(incomplete.Missing, ",")
	if got != "id,message_type,server,timestamp" {
		t.Errorf("unexpected missing fields %q", got)
	}
	if !strings.Contains(err.Error(), "missing id, message_type, server, timestamp") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestBuilderOverwrites(t *testing.T) {
	var b RecordBuilder
	ts := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	b.SetID("a")
	b.SetID("b")
	b.SetMessageType("m")
	b.SetRemoteID("r")
	b.SetServer("s")
	b.SetTimestamp(ts)

	r, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID != "b" {
		t.Errorf("expected id b, got %q", r.ID)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, r.Timestamp)
	}
}
