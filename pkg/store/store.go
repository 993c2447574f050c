// Package store holds the normalized task/artifact state for one thread.
// It is the single source of truth: inbound stream events are folded in
// by the mutators here, and every consumer reads from the projected
// snapshot returned by Sync, never from interior state.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/threadview/threadview/pkg/domain"
)

type taskRecord struct {
	task domain.Task
	// projected is the copy handed out by the last Sync. It is only
	// replaced when the record is dirty, so untouched tasks keep
	// referential identity across rebuilds.
	projected *domain.Task
	dirty     bool
	seq       uint64
}

type Store struct {
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	tasks   map[string]*taskRecord
	artTask map[string]string // artifact id -> owning task id
	// buffers accumulate chunk deltas per streaming artifact; an entry
	// exists only between artifact-start and artifact-completed.
	buffers map[string]*strings.Builder
	nextSeq uint64

	projected []*domain.Task
	stale     bool

	status      domain.ThreadStatus
	pendingPlan domain.Plan
	waiting     bool

	// changes holds at most one pending wakeup; a burst of chunk
	// mutations collapses into a single signal.
	changes chan struct{}
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger,
		now:       time.Now,
		tasks:     make(map[string]*taskRecord),
		artTask:   make(map[string]string),
		buffers:   make(map[string]*strings.Builder),
		projected: []*domain.Task{},
		status:    domain.ThreadIdle,
		changes:   make(chan struct{}, 1),
	}
}

// Changes returns the coalesced change signal. Receivers get at most
// one pending notification regardless of how many mutations occurred
// since they last drained it.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Apply folds one stream event into the store. Malformed payloads are
// returned as errors; events referencing unknown artifact ids are
// dropped silently per the defensive ingestion contract.
func (s *Store) Apply(ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventTaskUpdate:
		p, err := ev.TaskUpdate()
		if err != nil {
			return err
		}
		s.ApplyTask(p.Task)
	case domain.EventArtifactGenerated:
		p, err := ev.ArtifactGenerated()
		if err != nil {
			return err
		}
		s.AddArtifact(p.TaskID, p.Artifact)
	case domain.EventArtifactStart:
		p, err := ev.ArtifactStart()
		if err != nil {
			return err
		}
		s.StartArtifact(p)
	case domain.EventArtifactChunk:
		p, err := ev.ArtifactChunk()
		if err != nil {
			return err
		}
		s.StreamChunk(p.ArtifactID, p.Delta)
	case domain.EventArtifactCompleted:
		p, err := ev.ArtifactCompleted()
		if err != nil {
			return err
		}
		s.CompleteArtifact(p.ArtifactID, p.FullContent)
	case domain.EventPlanProposed:
		p, err := ev.PlanProposed()
		if err != nil {
			return err
		}
		s.ProposePlan(p.Plan)
	case domain.EventThreadStatus:
		p, err := ev.ThreadStatus()
		if err != nil {
			return err
		}
		s.SetStatus(p.Status)
	case domain.EventSync:
		p, err := ev.Sync()
		if err != nil {
			return err
		}
		s.Restore(p.Tasks, p.PendingPlan, p.WaitingForApproval)
	}
	return nil
}

// ApplyTask upserts task metadata. Artifacts are replaced only when the
// incoming task carries them; a bare status update leaves accumulated
// artifact state alone.
func (s *Store) ApplyTask(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureLocked(t.ID)
	rec.task.Title = t.Title
	if t.Status != "" {
		rec.task.Status = t.Status
	}
	rec.task.SortOrder = t.SortOrder
	rec.task.UpdatedAt = s.now()
	if len(t.Artifacts) > 0 {
		s.dropArtifactsLocked(rec)
		rec.task.Artifacts = append([]domain.Artifact(nil), t.Artifacts...)
		for i := range rec.task.Artifacts {
			a := &rec.task.Artifacts[i]
			a.TaskID = rec.task.ID
			s.artTask[a.ID] = rec.task.ID
		}
		sortArtifacts(rec.task.Artifacts)
	}
	s.touchLocked(rec)
}

// AddArtifact upserts a fully-formed artifact by id. Replaying the same
// event is idempotent: the entry is replaced in place, never duplicated.
func (s *Store) AddArtifact(taskID string, a domain.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureLocked(taskID)
	a.TaskID = rec.task.ID
	a.Streaming = false
	// A full artifact supersedes any in-flight accumulation for the id.
	delete(s.buffers, a.ID)

	if i := artifactIndex(rec.task.Artifacts, a.ID); i >= 0 {
		rec.task.Artifacts[i] = a
	} else {
		rec.task.Artifacts = append(rec.task.Artifacts, a)
	}
	s.artTask[a.ID] = rec.task.ID
	sortArtifacts(rec.task.Artifacts)
	rec.task.UpdatedAt = s.now()
	s.touchLocked(rec)
}

// StartArtifact registers a streaming placeholder. Duplicate start
// events for a known id are no-ops, including ids already finalized, so
// a late retransmit cannot wipe delivered content.
func (s *Store) StartArtifact(p domain.ArtifactStartPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.artTask[p.ArtifactID]; known {
		return
	}
	rec := s.ensureLocked(p.TaskID)
	rec.task.Artifacts = append(rec.task.Artifacts, domain.Artifact{
		ID:        p.ArtifactID,
		TaskID:    rec.task.ID,
		Type:      p.Type,
		Title:     p.Title,
		Language:  p.Language,
		SortOrder: p.SortOrder,
		Streaming: true,
	})
	sortArtifacts(rec.task.Artifacts)
	s.artTask[p.ArtifactID] = rec.task.ID
	s.buffers[p.ArtifactID] = &strings.Builder{}
	rec.task.UpdatedAt = s.now()
	s.touchLocked(rec)
}

// StreamChunk appends a delta to the artifact's accumulation buffer and
// propagates the cumulative string into its content. Chunks for unknown
// or already-finalized artifacts are dropped.
func (s *Store) StreamChunk(artifactID, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, ok := s.artTask[artifactID]
	if !ok {
		s.logger.Debug("chunk for unknown artifact dropped", "artifactId", artifactID)
		return
	}
	buf, ok := s.buffers[artifactID]
	if !ok {
		s.logger.Debug("chunk after completion dropped", "artifactId", artifactID)
		return
	}
	buf.WriteString(delta)

	rec := s.tasks[taskID]
	if i := artifactIndex(rec.task.Artifacts, artifactID); i >= 0 {
		rec.task.Artifacts[i].Content = buf.String()
	}
	rec.task.UpdatedAt = s.now()
	s.touchLocked(rec)
}

// CompleteArtifact finalizes an artifact with the server's authoritative
// content. The server value always wins over the local accumulation, so
// dropped chunks cannot leave content permanently truncated.
func (s *Store) CompleteArtifact(artifactID, fullContent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, ok := s.artTask[artifactID]
	if !ok {
		s.logger.Debug("completion for unknown artifact dropped", "artifactId", artifactID)
		return
	}
	delete(s.buffers, artifactID)

	rec := s.tasks[taskID]
	if i := artifactIndex(rec.task.Artifacts, artifactID); i >= 0 {
		rec.task.Artifacts[i].Content = fullContent
		rec.task.Artifacts[i].Streaming = false
	}
	rec.task.UpdatedAt = s.now()
	s.touchLocked(rec)
}

// ProposePlan stages a plan for human approval.
func (s *Store) ProposePlan(plan domain.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingPlan = append(domain.Plan(nil), plan...)
	s.waiting = true
	s.status = domain.ThreadWaitingForApproval
	s.stale = true
	s.signalLocked()
}

// AcceptPlan clears the approval state and upserts the (possibly
// edited) plan tasks into the store.
func (s *Store) AcceptPlan(plan domain.Plan) {
	s.mu.Lock()
	s.pendingPlan = nil
	s.waiting = false
	s.status = domain.ThreadRunning
	s.mu.Unlock()

	for _, t := range plan {
		if t.Status == "" {
			t.Status = domain.StatusPending
		}
		s.ApplyTask(t)
	}
}

// RejectPlan clears the approval state without touching tasks.
func (s *Store) RejectPlan() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingPlan = nil
	s.waiting = false
	s.status = domain.ThreadIdle
	s.stale = true
	s.signalLocked()
}

// ApprovalState returns the pending plan (copy) and whether the thread
// is waiting for a decision.
func (s *Store) ApprovalState() (domain.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(domain.Plan(nil), s.pendingPlan...), s.waiting
}

// SetStatus records the thread status. A resumed or terminal thread can
// no longer be waiting for approval.
func (s *Store) SetStatus(status domain.ThreadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	if status != domain.ThreadWaitingForApproval {
		s.waiting = false
		if status == domain.ThreadRunning || status.Terminal() {
			s.pendingPlan = nil
		}
	}
	s.stale = true
	s.signalLocked()
}

func (s *Store) Status() domain.ThreadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Clear removes all state; the explicit user-initiated reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*taskRecord)
	s.artTask = make(map[string]string)
	s.buffers = make(map[string]*strings.Builder)
	s.projected = []*domain.Task{}
	s.stale = false
	s.status = domain.ThreadIdle
	s.pendingPlan = nil
	s.waiting = false
	s.signalLocked()
}

// Restore replaces all tasks from a snapshot (initial sync frame or a
// persisted thread). Streaming buffers are rebuilt for any artifact
// still marked streaming so later chunks keep accumulating.
func (s *Store) Restore(tasks []*domain.Task, pending domain.Plan, waiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*taskRecord, len(tasks))
	s.artTask = make(map[string]string)
	s.buffers = make(map[string]*strings.Builder)
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		s.nextSeq++
		rec := &taskRecord{task: *t, dirty: true, seq: s.nextSeq}
		rec.task.Artifacts = append([]domain.Artifact(nil), t.Artifacts...)
		sortArtifacts(rec.task.Artifacts)
		for i := range rec.task.Artifacts {
			a := &rec.task.Artifacts[i]
			s.artTask[a.ID] = rec.task.ID
			if a.Streaming {
				buf := &strings.Builder{}
				buf.WriteString(a.Content)
				s.buffers[a.ID] = buf
			}
		}
		s.tasks[t.ID] = rec
	}
	s.pendingPlan = append(domain.Plan(nil), pending...)
	s.waiting = waiting
	if waiting {
		s.status = domain.ThreadWaitingForApproval
	}
	s.stale = true
	s.signalLocked()
}

// Sync rebuilds the exported ordered task list. Tasks untouched since
// the previous call keep referential identity, and the slice itself is
// only replaced when something changed, so downstream consumers can use
// identity comparison to skip recomputation.
func (s *Store) Sync() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stale {
		return s.projected
	}

	recs := make([]*taskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].task.SortOrder != recs[j].task.SortOrder {
			return recs[i].task.SortOrder < recs[j].task.SortOrder
		}
		return recs[i].seq < recs[j].seq
	})

	out := make([]*domain.Task, len(recs))
	for i, rec := range recs {
		if rec.dirty || rec.projected == nil {
			cp := rec.task
			cp.Artifacts = append([]domain.Artifact(nil), rec.task.Artifacts...)
			rec.projected = &cp
			rec.dirty = false
		}
		out[i] = rec.projected
	}
	s.projected = out
	s.stale = false
	return out
}

func (s *Store) ensureLocked(taskID string) *taskRecord {
	if rec, ok := s.tasks[taskID]; ok {
		return rec
	}
	s.nextSeq++
	rec := &taskRecord{
		task: domain.Task{
			ID:        taskID,
			Status:    domain.StatusPending,
			CreatedAt: s.now(),
			UpdatedAt: s.now(),
		},
		seq: s.nextSeq,
	}
	s.tasks[taskID] = rec
	return rec
}

func (s *Store) dropArtifactsLocked(rec *taskRecord) {
	for _, a := range rec.task.Artifacts {
		delete(s.artTask, a.ID)
		delete(s.buffers, a.ID)
	}
	rec.task.Artifacts = nil
}

func (s *Store) touchLocked(rec *taskRecord) {
	rec.dirty = true
	s.stale = true
	s.signalLocked()
}

func (s *Store) signalLocked() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func artifactIndex(arts []domain.Artifact, id string) int {
	for i := range arts {
		if arts[i].ID == id {
			return i
		}
	}
	return -1
}

func sortArtifacts(arts []domain.Artifact) {
	sort.SliceStable(arts, func(i, j int) bool {
		return arts[i].SortOrder < arts[j].SortOrder
	})
}
