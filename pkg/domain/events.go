package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTaskUpdate        EventType = "task-update"
	EventArtifactGenerated EventType = "artifact-generated"
	EventArtifactStart     EventType = "artifact-start"
	EventArtifactChunk     EventType = "artifact-chunk"
	EventArtifactCompleted EventType = "artifact-completed"
	EventPlanProposed      EventType = "plan-proposed"
	EventThreadStatus      EventType = "thread-status"

	// EventSync is emitted by the gateway as the first frame of a stream
	// subscription and carries the full projected task list.
	EventSync EventType = "sync"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is the envelope carried on the streaming channel. Payload holds
// the type-specific body; decode it with the typed accessors below.
type Event struct {
	ID       string          `json:"event_id,omitempty"`
	Type     EventType       `json:"type"`
	ThreadID string          `json:"thread_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type TaskUpdatePayload struct {
	Task Task `json:"task"`
}

type ArtifactGeneratedPayload struct {
	TaskID   string   `json:"task_id"`
	Artifact Artifact `json:"artifact"`
}

type ArtifactStartPayload struct {
	TaskID     string       `json:"task_id"`
	ArtifactID string       `json:"artifact_id"`
	Type       ArtifactType `json:"type"`
	Title      string       `json:"title,omitempty"`
	Language   string       `json:"language,omitempty"`
	SortOrder  int          `json:"sort_order,omitempty"`
}

type ArtifactChunkPayload struct {
	ArtifactID string `json:"artifact_id"`
	Delta      string `json:"delta"`
}

type ArtifactCompletedPayload struct {
	ArtifactID  string `json:"artifact_id"`
	FullContent string `json:"full_content"`
}

type PlanProposedPayload struct {
	Plan Plan `json:"plan"`
}

type ThreadStatusPayload struct {
	Status ThreadStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

type SyncPayload struct {
	Tasks              []*Task `json:"tasks"`
	WaitingForApproval bool    `json:"waiting_for_approval,omitempty"`
	PendingPlan        Plan    `json:"pending_plan,omitempty"`
}

// NewEvent marshals payload into an envelope. It panics only on
// unmarshalable payloads, which would be a programming error.
func NewEvent(typ EventType, threadID string, payload any) Event {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal %s payload: %v", typ, err))
	}
	return Event{ID: uuid.NewString(), Type: typ, ThreadID: threadID, Payload: b}
}

// Validate checks the envelope before it is applied to a store.
func (e Event) Validate() error {
	switch e.Type {
	case EventTaskUpdate, EventArtifactGenerated, EventArtifactStart,
		EventArtifactChunk, EventArtifactCompleted, EventPlanProposed,
		EventThreadStatus, EventSync:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Type)
	}
	return nil
}

func (e Event) decode(typ EventType, v any) error {
	if e.Type != typ {
		return fmt.Errorf("event is %s, not %s", e.Type, typ)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", typ, err)
	}
	return nil
}

func (e Event) TaskUpdate() (TaskUpdatePayload, error) {
	var p TaskUpdatePayload
	err := e.decode(EventTaskUpdate, &p)
	if err == nil && strings.TrimSpace(p.Task.ID) == "" {
		err = errors.New("task-update: missing task id")
	}
	return p, err
}

func (e Event) ArtifactGenerated() (ArtifactGeneratedPayload, error) {
	var p ArtifactGeneratedPayload
	err := e.decode(EventArtifactGenerated, &p)
	if err == nil && strings.TrimSpace(p.Artifact.ID) == "" {
		err = errors.New("artifact-generated: missing artifact id")
	}
	return p, err
}

func (e Event) ArtifactStart() (ArtifactStartPayload, error) {
	var p ArtifactStartPayload
	err := e.decode(EventArtifactStart, &p)
	if err == nil && strings.TrimSpace(p.ArtifactID) == "" {
		err = errors.New("artifact-start: missing artifact id")
	}
	return p, err
}

func (e Event) ArtifactChunk() (ArtifactChunkPayload, error) {
	var p ArtifactChunkPayload
	err := e.decode(EventArtifactChunk, &p)
	return p, err
}

func (e Event) ArtifactCompleted() (ArtifactCompletedPayload, error) {
	var p ArtifactCompletedPayload
	err := e.decode(EventArtifactCompleted, &p)
	return p, err
}

func (e Event) PlanProposed() (PlanProposedPayload, error) {
	var p PlanProposedPayload
	err := e.decode(EventPlanProposed, &p)
	return p, err
}

func (e Event) ThreadStatus() (ThreadStatusPayload, error) {
	var p ThreadStatusPayload
	err := e.decode(EventThreadStatus, &p)
	return p, err
}

func (e Event) Sync() (SyncPayload, error) {
	var p SyncPayload
	err := e.decode(EventSync, &p)
	return p, err
}
