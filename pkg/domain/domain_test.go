package domain

import (
	"encoding/json"
	"testing"
)

func TestTaskStatusMarshalText(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   string
	}{
		{"pending", StatusPending, "pending"},
		{"running", StatusRunning, "running"},
		{"completed", StatusCompleted, "completed"},
		{"failed", StatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.status.MarshalText()
			if err != nil {
				t.Errorf("MarshalText() error = %v", err)
				return
			}
			if string(got) != tt.want {
				t.Errorf("MarshalText() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestArtifactTypeMarshalBinary(t *testing.T) {
	tests := []struct {
		name string
		typ  ArtifactType
		want string
	}{
		{"code", ArtifactCode, "code"},
		{"markdown", ArtifactMarkdown, "markdown"},
		{"html", ArtifactHTML, "html"},
		{"text", ArtifactText, "text"},
		{"search", ArtifactSearch, "search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.MarshalBinary()
			if err != nil {
				t.Errorf("MarshalBinary() error = %v", err)
				return
			}
			if string(got) != tt.want {
				t.Errorf("MarshalBinary() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestThreadStatusTerminal(t *testing.T) {
	tests := []struct {
		status ThreadStatus
		want   bool
	}{
		{ThreadIdle, false},
		{ThreadRunning, false},
		{ThreadWaitingForApproval, false},
		{ThreadCompleted, true},
		{ThreadFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := NewEvent(EventArtifactChunk, "thread-1", ArtifactChunkPayload{
		ArtifactID: "art-1",
		Delta:      "func main() {",
	})

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	p, err := back.ArtifactChunk()
	if err != nil {
		t.Fatalf("ArtifactChunk() error = %v", err)
	}
	if p.ArtifactID != "art-1" {
		t.Errorf("Expected artifact id 'art-1', got %s", p.ArtifactID)
	}
	if p.Delta != "func main() {" {
		t.Errorf("Unexpected delta %q", p.Delta)
	}
}

func TestNewEventAssignsID(t *testing.T) {
	a := NewEvent(EventThreadStatus, "th-1", ThreadStatusPayload{Status: ThreadRunning})
	b := NewEvent(EventThreadStatus, "th-1", ThreadStatusPayload{Status: ThreadRunning})
	if a.ID == "" || b.ID == "" {
		t.Fatal("Expected envelope ids to be assigned")
	}
	if a.ID == b.ID {
		t.Error("Expected distinct envelope ids")
	}
}

func TestEventValidateUnknownType(t *testing.T) {
	ev := Event{Type: "bogus", Payload: json.RawMessage(`{}`)}
	if err := ev.Validate(); err == nil {
		t.Fatal("Expected error for unknown event type")
	}
}

func TestEventValidateEmptyPayload(t *testing.T) {
	ev := Event{Type: EventArtifactChunk}
	if err := ev.Validate(); err == nil {
		t.Fatal("Expected error for empty payload")
	}
}

func TestEventDecodeWrongType(t *testing.T) {
	ev := NewEvent(EventArtifactChunk, "thread-1", ArtifactChunkPayload{ArtifactID: "a"})
	if _, err := ev.ArtifactCompleted(); err == nil {
		t.Fatal("Expected error decoding chunk event as completed")
	}
}

func TestArtifactStartMissingID(t *testing.T) {
	ev := NewEvent(EventArtifactStart, "thread-1", ArtifactStartPayload{TaskID: "task-1"})
	if _, err := ev.ArtifactStart(); err == nil {
		t.Fatal("Expected error for missing artifact id")
	}
}
