package domain

import (
	"encoding"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactMarkdown ArtifactType = "markdown"
	ArtifactHTML     ArtifactType = "html"
	ArtifactText     ArtifactType = "text"
	ArtifactSearch   ArtifactType = "search"
)

// Artifact is a discrete generated content block attached to a task.
// Content grows monotonically while Streaming is true and is replaced
// with the server's authoritative value on completion.
type Artifact struct {
	ID        string       `json:"id"`
	TaskID    string       `json:"task_id,omitempty"`
	Type      ArtifactType `json:"type"`
	Title     string       `json:"title,omitempty"`
	Content   string       `json:"content"`
	Language  string       `json:"language,omitempty"`
	SortOrder int          `json:"sort_order"`
	Streaming bool         `json:"streaming,omitempty"`
}

// Task is a unit of agent work owning zero or more artifacts. Tasks are
// created on the first event referencing an unseen id, mutated in place
// as events arrive, and only removed by an explicit clear.
type Task struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Plan is a proposed ordered sequence of tasks awaiting human approval.
type Plan []Task

// ThreadStatus is the coarse execution state of a whole thread.
type ThreadStatus string

const (
	ThreadIdle               ThreadStatus = "idle"
	ThreadRunning            ThreadStatus = "running"
	ThreadWaitingForApproval ThreadStatus = "waiting_for_approval"
	ThreadCompleted          ThreadStatus = "completed"
	ThreadFailed             ThreadStatus = "failed"
)

// Terminal reports whether the status ends thread execution.
func (s ThreadStatus) Terminal() bool {
	return s == ThreadCompleted || s == ThreadFailed
}

// ThreadSnapshot is the durable projection of a thread, written through
// the key-value port on terminal transitions.
type ThreadSnapshot struct {
	ThreadID  string       `json:"thread_id"`
	Status    ThreadStatus `json:"status"`
	Tasks     []*Task      `json:"tasks"`
	UpdatedAt time.Time    `json:"updated_at"`
}

var (
	_ encoding.BinaryMarshaler = TaskStatus("")
	_ encoding.TextMarshaler   = TaskStatus("")
	_ encoding.BinaryMarshaler = ArtifactType("")
	_ encoding.TextMarshaler   = ArtifactType("")
)

func (s TaskStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s TaskStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

func (t ArtifactType) MarshalBinary() ([]byte, error) { return []byte(string(t)), nil }
func (t ArtifactType) MarshalText() ([]byte, error)   { return []byte(string(t)), nil }
