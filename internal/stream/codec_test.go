package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/threadview/threadview/pkg/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	events := []domain.Event{
		domain.NewEvent(domain.EventArtifactStart, "th-1", domain.ArtifactStartPayload{
			TaskID: "task-a", ArtifactID: "art-1", Type: domain.ArtifactCode,
		}),
		domain.NewEvent(domain.EventArtifactChunk, "th-1", domain.ArtifactChunkPayload{
			ArtifactID: "art-1", Delta: "line one\nline two",
		}),
		domain.NewEvent(domain.EventArtifactCompleted, "th-1", domain.ArtifactCompletedPayload{
			ArtifactID: "art-1", FullContent: "line one\nline two\n",
		}),
	}

	for _, ev := range events {
		if err := Encode(&buf, ev); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range events {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() %d failed: %v", i, err)
		}
		if got.Type != want.Type || got.ThreadID != want.ThreadID {
			t.Errorf("Frame %d: got %s/%s, want %s/%s", i, got.Type, got.ThreadID, want.Type, want.ThreadID)
		}
		if got.ID != want.ID {
			t.Errorf("Frame %d: envelope id lost in transit: %q", i, got.ID)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Expected EOF at stream end, got %v", err)
	}
}

func TestDeltaWithNewlinesSurvives(t *testing.T) {
	var buf bytes.Buffer
	ev := domain.NewEvent(domain.EventArtifactChunk, "th-1", domain.ArtifactChunkPayload{
		ArtifactID: "art-1", Delta: "a\nb\nc",
	})
	if err := Encode(&buf, ev); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := NewReader(&buf).Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	p, err := got.ArtifactChunk()
	if err != nil {
		t.Fatalf("ArtifactChunk failed: %v", err)
	}
	if p.Delta != "a\nb\nc" {
		t.Errorf("Delta mangled in transit: %q", p.Delta)
	}
}

func TestReaderSkipsHeartbeats(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteHeartbeat(&buf)
	_ = Encode(&buf, domain.NewEvent(domain.EventThreadStatus, "th-1", domain.ThreadStatusPayload{
		Status: domain.ThreadRunning,
	}))
	_ = WriteHeartbeat(&buf)

	r := NewReader(&buf)
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got.Type != domain.EventThreadStatus {
		t.Errorf("Expected thread-status, got %s", got.Type)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestReaderTruncatedFrame(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"type\":\"artifact-chunk\""))
	if _, err := r.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("Expected ErrUnexpectedEOF for truncated frame, got %v", err)
	}
}

func TestReaderBadJSON(t *testing.T) {
	r := NewReader(strings.NewReader("data: not-json\n\n"))
	if _, err := r.Next(); err == nil {
		t.Fatal("Expected error for malformed frame")
	}
}
