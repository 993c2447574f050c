package store

import (
	"strings"

	"github.com/threadview/threadview/pkg/domain"
)

// Txn captures a point-in-time snapshot of the store so an optimistic
// mutation can be reverted if the backing request fails. The usual
// shape is: Begin, mutate optimistically, run the request, then Commit
// on success or Rollback on failure.
type Txn struct {
	s        *Store
	tasks    map[string]taskRecord
	artTask  map[string]string
	buffers  map[string]string
	status   domain.ThreadStatus
	pending  domain.Plan
	waiting  bool
	resolved bool
}

// Begin snapshots the full store state. The snapshot is cheap relative
// to stream volume: it copies task records and buffer strings once, not
// per chunk.
func (s *Store) Begin() *Txn {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Txn{
		s:       s,
		tasks:   make(map[string]taskRecord, len(s.tasks)),
		artTask: make(map[string]string, len(s.artTask)),
		buffers: make(map[string]string, len(s.buffers)),
		status:  s.status,
		pending: append(domain.Plan(nil), s.pendingPlan...),
		waiting: s.waiting,
	}
	for id, rec := range s.tasks {
		cp := *rec
		cp.task.Artifacts = append([]domain.Artifact(nil), rec.task.Artifacts...)
		t.tasks[id] = cp
	}
	for id, taskID := range s.artTask {
		t.artTask[id] = taskID
	}
	for id, buf := range s.buffers {
		t.buffers[id] = buf.String()
	}
	return t
}

// Commit discards the snapshot; the optimistic state stands.
func (t *Txn) Commit() {
	t.resolved = true
}

// Rollback restores the store to the snapshot taken at Begin. Calling
// it after Commit is a no-op.
func (t *Txn) Rollback() {
	if t.resolved {
		return
	}
	t.resolved = true

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*taskRecord, len(t.tasks))
	for id, rec := range t.tasks {
		cp := rec
		cp.dirty = true
		s.tasks[id] = &cp
	}
	s.artTask = make(map[string]string, len(t.artTask))
	for id, taskID := range t.artTask {
		s.artTask[id] = taskID
	}
	s.buffers = make(map[string]*strings.Builder, len(t.buffers))
	for id, content := range t.buffers {
		buf := &strings.Builder{}
		buf.WriteString(content)
		s.buffers[id] = buf
	}
	s.status = t.status
	s.pendingPlan = append(domain.Plan(nil), t.pending...)
	s.waiting = t.waiting
	s.stale = true
	s.signalLocked()
}
