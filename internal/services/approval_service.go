package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/threadview/threadview/internal/hub"
	"github.com/threadview/threadview/internal/metrics"
	"github.com/threadview/threadview/pkg/domain"
)

var ErrNoPendingPlan = errors.New("thread has no pending plan")

type ApprovalService interface {
	// Resume applies a human decision on the pending plan. When approved
	// with a non-empty plan, the edited plan replaces the proposed one.
	Resume(ctx context.Context, threadID string, approved bool, plan domain.Plan) error
}

type approvalService struct {
	logger  *slog.Logger
	threads ThreadService
	hub     *hub.Hub
}

func NewApprovalService(logger *slog.Logger, threads ThreadService, h *hub.Hub) ApprovalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &approvalService{logger: logger, threads: threads, hub: h}
}

func (a *approvalService) Resume(ctx context.Context, threadID string, approved bool, plan domain.Plan) error {
	decision := "reject"
	if approved {
		decision = "approve"
	}

	st, err := a.threads.StoreFor(ctx, threadID)
	if err != nil {
		metrics.ApprovalsTotal.WithLabelValues(decision, "error").Inc()
		return err
	}

	pending, waiting := st.ApprovalState()
	if !waiting {
		metrics.ApprovalsTotal.WithLabelValues(decision, "no_pending_plan").Inc()
		return ErrNoPendingPlan
	}

	var status domain.ThreadStatus
	if approved {
		if len(plan) == 0 {
			plan = pending
		}
		st.AcceptPlan(plan)
		status = domain.ThreadRunning
	} else {
		st.RejectPlan()
		status = domain.ThreadIdle
	}

	// Fan out the authoritative post-decision state so every subscriber
	// converges, including the one that decided optimistically.
	pendingAfter, waitingAfter := st.ApprovalState()
	a.hub.Publish(threadID, domain.NewEvent(domain.EventSync, threadID, domain.SyncPayload{
		Tasks:              st.Sync(),
		WaitingForApproval: waitingAfter,
		PendingPlan:        pendingAfter,
	}))
	a.hub.Publish(threadID, domain.NewEvent(domain.EventThreadStatus, threadID, domain.ThreadStatusPayload{
		Status: status,
	}))

	metrics.ApprovalsTotal.WithLabelValues(decision, "success").Inc()
	a.logger.Info("plan decision applied", "thread_id", threadID, "decision", decision, "tasks", len(plan))
	return nil
}
