package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD POINTS COMMAND
// The write path for staff-initiated point and coin movements. Awards whose
// point magnitude crosses the moderation threshold never touch the ledger
// here - they become pending approvals an elevated actor decides later.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultApprovalThreshold - point magnitude above which an award routes
// through the moderation queue.
const DefaultApprovalThreshold shared.Points = 50

// AwardPointsCommand contains one proposed point/coin award.
type AwardPointsCommand struct {
	// StudentID is the target student (directory reference).
	StudentID string

	// TenantID is the owning organization.
	TenantID string

	// Points is the signed point delta.
	Points int

	// Coins is the signed coin delta.
	Coins int

	// Reason is the mandatory human-readable justification.
	Reason string

	// Category classifies the award (homework, attendance, behavior, manual).
	Category string

	// Actor is the authenticated staff member proposing the award.
	Actor shared.Actor
}

// Validate validates the command.
func (c AwardPointsCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	if !ledger.Category(c.Category).IsValid() {
		return shared.ErrInvalidCategory
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "AwardPoints", shared.ErrInvalidInput, "acting staff identity is invalid")
	}
	return nil
}

// AwardPointsResult contains the outcome of one award proposal.
type AwardPointsResult struct {
	// Queued is true when the award was intercepted by the threshold.
	Queued bool

	// Approval is the queued entry, set only when Queued.
	Approval *approval.PendingApproval

	// Commit is the pipeline outcome, set only for immediate commits.
	Commit *CommitResult
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardPointsHandlerConfig contains configuration for the handler.
type AwardPointsHandlerConfig struct {
	// ApprovalThreshold - awards with |points| above it are queued.
	ApprovalThreshold shared.Points
}

// DefaultAwardPointsHandlerConfig returns default configuration.
func DefaultAwardPointsHandlerConfig() AwardPointsHandlerConfig {
	return AwardPointsHandlerConfig{ApprovalThreshold: DefaultApprovalThreshold}
}

// AwardPointsHandler handles the AwardPointsCommand.
type AwardPointsHandler struct {
	committer Committer
	uow       UnitOfWork
	directory DirectoryClient
	publisher shared.EventPublisher
	threshold shared.Points
}

// NewAwardPointsHandler creates a new AwardPointsHandler.
func NewAwardPointsHandler(
	committer Committer,
	uow UnitOfWork,
	directory DirectoryClient,
	publisher shared.EventPublisher,
	config AwardPointsHandlerConfig,
) *AwardPointsHandler {
	if config.ApprovalThreshold <= 0 {
		config = DefaultAwardPointsHandlerConfig()
	}

	return &AwardPointsHandler{
		committer: committer,
		uow:       uow,
		directory: directory,
		publisher: publisher,
		threshold: config.ApprovalThreshold,
	}
}

// Handle executes the award points command. Awards at or below the threshold
// commit immediately; above it they join the moderation queue and nothing
// reaches the ledger until an elevated actor approves.
func (h *AwardPointsHandler) Handle(ctx context.Context, cmd AwardPointsCommand) (*AwardPointsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_points: validation failed: %w", err)
	}

	studentID, _ := shared.NewStudentID(cmd.StudentID)
	tenantID, _ := shared.NewTenantID(cmd.TenantID)

	if err := h.verifyReferences(ctx, cmd); err != nil {
		return nil, err
	}

	points := shared.Points(cmd.Points)
	coins := shared.Coins(cmd.Coins)

	if points.Abs() > h.threshold {
		return h.queue(ctx, cmd, studentID, tenantID, points, coins)
	}
	return h.commit(ctx, cmd, studentID, tenantID, points, coins)
}

// verifyReferences resolves the student and actor against the directory.
// System-role actors are internal and have no directory record.
func (h *AwardPointsHandler) verifyReferences(ctx context.Context, cmd AwardPointsCommand) error {
	if h.directory == nil {
		return nil
	}
	if err := h.directory.VerifyStudent(ctx, cmd.StudentID, cmd.TenantID); err != nil {
		return fmt.Errorf("award_points: student reference: %w", err)
	}
	if cmd.Actor.Role != shared.RoleSystem {
		if err := h.directory.VerifyActor(ctx, cmd.Actor.ID, cmd.TenantID); err != nil {
			return fmt.Errorf("award_points: actor reference: %w", err)
		}
	}
	return nil
}

func (h *AwardPointsHandler) queue(ctx context.Context, cmd AwardPointsCommand, studentID shared.StudentID, tenantID shared.TenantID, points shared.Points, coins shared.Coins) (*AwardPointsResult, error) {
	pending, err := approval.NewPendingApproval(approval.NewPendingApprovalParams{
		StudentID:   studentID,
		TenantID:    tenantID,
		Points:      points,
		Coins:       coins,
		Reason:      cmd.Reason,
		Category:    cmd.Category,
		RequestedBy: cmd.Actor,
	})
	if err != nil {
		return nil, err
	}

	if err := h.uow.Repos().Approvals.Create(ctx, pending); err != nil {
		return nil, err
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(shared.NewApprovalQueuedEvent(
			pending.ID,
			studentID.String(),
			tenantID.String(),
			points.Int(),
			coins.Int(),
			int(pending.Priority),
			cmd.Actor.ID,
		))
	}

	return &AwardPointsResult{Queued: true, Approval: pending}, nil
}

func (h *AwardPointsHandler) commit(ctx context.Context, cmd AwardPointsCommand, studentID shared.StudentID, tenantID shared.TenantID, points shared.Points, coins shared.Coins) (*AwardPointsResult, error) {
	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
		Kind:      kindForDeltas(points, coins),
		Points:    points,
		Coins:     coins,
		Reason:    cmd.Reason,
		Category:  ledger.Category(cmd.Category),
		AwardedBy: cmd.Actor.ID,
	})
	if err != nil {
		return nil, err
	}

	res, err := h.committer.Commit(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &AwardPointsResult{Commit: res}, nil
}

// kindForDeltas derives the transaction kind from the delta signs.
func kindForDeltas(points shared.Points, coins shared.Coins) ledger.Kind {
	if points < 0 || (points == 0 && coins < 0) {
		return ledger.KindDeducted
	}
	return ledger.KindEarned
}

// ══════════════════════════════════════════════════════════════════════════════
// BULK AWARD COMMAND
// One reason, many students. Each student is an independent unit of work:
// one invalid or conflicting proposal never blocks the rest, and each is
// individually committed or queued by the same threshold test.
// ══════════════════════════════════════════════════════════════════════════════

// BulkAwardPointsCommand contains one award applied to many students.
type BulkAwardPointsCommand struct {
	StudentIDs []string
	TenantID   string
	Points     int
	Coins      int
	Reason     string
	Category   string
	Actor      shared.Actor
}

// BulkStudentResult is the per-student outcome of a bulk award.
type BulkStudentResult struct {
	StudentID string
	Result    *AwardPointsResult
	Err       error
}

// BulkAwardPointsResult contains the per-student result list.
type BulkAwardPointsResult struct {
	TotalCount     int
	CommittedCount int
	QueuedCount    int
	FailedCount    int
	Results        []BulkStudentResult
}

// BulkAwardPointsHandler handles the BulkAwardPointsCommand.
type BulkAwardPointsHandler struct {
	handler *AwardPointsHandler
}

// NewBulkAwardPointsHandler creates a new bulk handler.
func NewBulkAwardPointsHandler(handler *AwardPointsHandler) *BulkAwardPointsHandler {
	return &BulkAwardPointsHandler{handler: handler}
}

// Handle executes the bulk award command.
func (h *BulkAwardPointsHandler) Handle(ctx context.Context, cmd BulkAwardPointsCommand) (*BulkAwardPointsResult, error) {
	if len(cmd.StudentIDs) == 0 {
		return nil, shared.NewDomainError("command", "BulkAward", shared.ErrEmptyValue, "bulk award requires at least one student")
	}

	result := &BulkAwardPointsResult{
		TotalCount: len(cmd.StudentIDs),
		Results:    make([]BulkStudentResult, 0, len(cmd.StudentIDs)),
	}

	for _, studentID := range cmd.StudentIDs {
		single, err := h.handler.Handle(ctx, AwardPointsCommand{
			StudentID: studentID,
			TenantID:  cmd.TenantID,
			Points:    cmd.Points,
			Coins:     cmd.Coins,
			Reason:    cmd.Reason,
			Category:  cmd.Category,
			Actor:     cmd.Actor,
		})

		entry := BulkStudentResult{StudentID: studentID, Result: single, Err: err}
		result.Results = append(result.Results, entry)

		switch {
		case err != nil:
			result.FailedCount++
		case single.Queued:
			result.QueuedCount++
		default:
			result.CommittedCount++
		}
	}

	return result, nil
}
