package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threadview/threadview/internal/hub"
	"github.com/threadview/threadview/internal/metrics"
	"github.com/threadview/threadview/pkg/domain"
	"github.com/threadview/threadview/pkg/persistence"
	"github.com/threadview/threadview/pkg/store"
)

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// ThreadStats is the admin view of one live thread.
type ThreadStats struct {
	ThreadID    string              `json:"thread_id"`
	Status      domain.ThreadStatus `json:"status"`
	Tasks       int                 `json:"tasks"`
	Subscribers int                 `json:"subscribers"`
}

type ThreadService interface {
	// Ingest applies one agent event to the thread store, fans it out to
	// stream subscribers, and persists a snapshot on terminal transitions.
	Ingest(ctx context.Context, ev domain.Event) error

	// Tasks returns the ordered projected task list for a thread.
	Tasks(ctx context.Context, threadID string) ([]*domain.Task, domain.ThreadStatus, error)

	// Artifact looks up a single artifact in a thread.
	Artifact(ctx context.Context, threadID, artifactID string) (domain.Artifact, error)

	// Subscribe attaches a stream subscriber and returns the current
	// state so the caller can emit an initial sync frame.
	Subscribe(ctx context.Context, threadID string) (domain.SyncPayload, *hub.Subscriber, func(), error)

	// StoreFor exposes the live store of a thread, creating it when
	// absent. Used by the approval flow, which mutates approval state
	// directly.
	StoreFor(ctx context.Context, threadID string) (*store.Store, error)

	Clear(ctx context.Context, threadID string) error

	Stats(ctx context.Context) []ThreadStats
}

type threadService struct {
	logger      *slog.Logger
	hub         *hub.Hub
	kv          persistence.KV
	snapshotTTL time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	threads map[string]*store.Store
}

func NewThreadService(logger *slog.Logger, h *hub.Hub, kv persistence.KV, snapshotTTL time.Duration, now func() time.Time) ThreadService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &threadService{
		logger:      logger,
		hub:         h,
		kv:          kv,
		snapshotTTL: snapshotTTL,
		now:         now,
		threads:     make(map[string]*store.Store),
	}
}

func (s *threadService) Ingest(ctx context.Context, ev domain.Event) error {
	start := s.now()

	if err := ev.Validate(); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("invalid").Inc()
		return err
	}
	// Agents may omit the envelope id; subscribers still get one per frame.
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	st, err := s.storeFor(ctx, ev.ThreadID, true)
	if err != nil {
		return err
	}

	if err := st.Apply(ev); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("apply").Inc()
		return err
	}

	metrics.EventsIngestedTotal.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == domain.EventArtifactChunk {
		if p, err := ev.ArtifactChunk(); err == nil {
			metrics.ChunkBytesTotal.Add(float64(len(p.Delta)))
		}
	}
	metrics.IngestLatencySeconds.Observe(s.now().Sub(start).Seconds())

	s.hub.Publish(ev.ThreadID, ev)

	if ev.Type == domain.EventThreadStatus {
		if p, err := ev.ThreadStatus(); err == nil && p.Status.Terminal() {
			s.persistSnapshot(ctx, ev.ThreadID, st)
		}
	}
	return nil
}

func (s *threadService) Tasks(ctx context.Context, threadID string) ([]*domain.Task, domain.ThreadStatus, error) {
	st, err := s.storeFor(ctx, threadID, false)
	if err != nil {
		return nil, "", err
	}
	return st.Sync(), st.Status(), nil
}

func (s *threadService) Artifact(ctx context.Context, threadID, artifactID string) (domain.Artifact, error) {
	st, err := s.storeFor(ctx, threadID, false)
	if err != nil {
		return domain.Artifact{}, err
	}
	for _, task := range st.Sync() {
		for _, a := range task.Artifacts {
			if a.ID == artifactID {
				return a, nil
			}
		}
	}
	return domain.Artifact{}, ErrArtifactNotFound
}

func (s *threadService) Subscribe(ctx context.Context, threadID string) (domain.SyncPayload, *hub.Subscriber, func(), error) {
	// Subscribing to a thread that has not produced events yet is fine;
	// the browser usually attaches before the agent starts emitting.
	st, err := s.storeFor(ctx, threadID, true)
	if err != nil {
		return domain.SyncPayload{}, nil, nil, err
	}

	pending, waiting := st.ApprovalState()
	snapshot := domain.SyncPayload{
		Tasks:              st.Sync(),
		WaitingForApproval: waiting,
		PendingPlan:        pending,
	}

	sub, cancel := s.hub.Subscribe(threadID)
	metrics.StreamSubscribers.Inc()
	var once sync.Once
	wrapped := func() {
		once.Do(func() {
			metrics.StreamSubscribers.Dec()
		})
		cancel()
	}
	return snapshot, sub, wrapped, nil
}

func (s *threadService) StoreFor(ctx context.Context, threadID string) (*store.Store, error) {
	return s.storeFor(ctx, threadID, true)
}

func (s *threadService) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	st, ok := s.threads[threadID]
	delete(s.threads, threadID)
	s.mu.Unlock()

	if ok {
		st.Clear()
	}
	if err := s.kv.Delete(ctx, persistence.ThreadKey(threadID)); err != nil {
		return fmt.Errorf("clear thread %s: %w", threadID, err)
	}
	s.logger.Info("thread cleared", "thread_id", threadID)
	return nil
}

func (s *threadService) Stats(ctx context.Context) []ThreadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ThreadStats, 0, len(s.threads))
	for id, st := range s.threads {
		out = append(out, ThreadStats{
			ThreadID:    id,
			Status:      st.Status(),
			Tasks:       len(st.Sync()),
			Subscribers: s.hub.SubscriberCount(id),
		})
	}
	return out
}

func (s *threadService) storeFor(ctx context.Context, threadID string, create bool) (*store.Store, error) {
	s.mu.RLock()
	st, ok := s.threads[threadID]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.threads[threadID]; ok {
		return st, nil
	}

	// Unknown in memory: try a persisted snapshot before deciding the
	// thread does not exist.
	raw, err := s.kv.Get(ctx, persistence.ThreadKey(threadID))
	switch {
	case err == nil:
		var snap domain.ThreadSnapshot
		if uerr := json.Unmarshal(raw, &snap); uerr != nil {
			return nil, fmt.Errorf("decode snapshot for thread %s: %w", threadID, uerr)
		}
		st = store.New(s.logger.With("thread_id", threadID))
		st.Restore(snap.Tasks, nil, false)
		st.SetStatus(snap.Status)
		s.threads[threadID] = st
		s.logger.Info("thread restored from snapshot", "thread_id", threadID, "tasks", len(snap.Tasks))
		return st, nil
	case errors.Is(err, persistence.ErrNotFound):
		if !create {
			return nil, ErrThreadNotFound
		}
		st = store.New(s.logger.With("thread_id", threadID))
		s.threads[threadID] = st
		return st, nil
	default:
		return nil, fmt.Errorf("load snapshot for thread %s: %w", threadID, err)
	}
}

func (s *threadService) persistSnapshot(ctx context.Context, threadID string, st *store.Store) {
	snap := domain.ThreadSnapshot{
		ThreadID:  threadID,
		Status:    st.Status(),
		Tasks:     st.Sync(),
		UpdatedAt: s.now(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		metrics.SnapshotsPersistedTotal.WithLabelValues("error").Inc()
		s.logger.Error("encode snapshot failed", "thread_id", threadID, "err", err)
		return
	}
	if err := s.kv.Set(ctx, persistence.ThreadKey(threadID), raw, s.snapshotTTL); err != nil {
		metrics.SnapshotsPersistedTotal.WithLabelValues("error").Inc()
		s.logger.Error("persist snapshot failed", "thread_id", threadID, "err", err)
		return
	}
	metrics.SnapshotsPersistedTotal.WithLabelValues("success").Inc()
	s.logger.Info("thread snapshot persisted", "thread_id", threadID, "status", snap.Status, "tasks", len(snap.Tasks))
}
