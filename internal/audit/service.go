package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

// Actor identifies who performed a state-changing action.
type Actor struct {
	ID        uuid.UUID
	Role      string
	ClientIP  string
	UserAgent string
}

// SystemActor attributes mutations performed by background processes, the
// reconcile worker in particular.
var SystemActor = Actor{
	ID:   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Role: "system",
}

// Entry captures one state-changing action for the audit log. Before and
// After are marshaled as JSON snapshots; either may be nil.
type Entry struct {
	Actor      Actor
	Action     enums.AuditAction
	TargetType string
	TargetID   uuid.UUID
	Before     any
	After      any
	Reason     string
}

// Recorder writes audit entries inside the caller's transaction so the entry
// commits or rolls back together with the mutation it describes.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	ListByTarget(ctx context.Context, targetType string, targetID uuid.UUID, params pagination.Params) ([]models.AuditLogEntry, error)
}

type recorder struct {
	repo Repository
}

// NewRecorder wires an audit recorder with the provided repository.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo}, nil
}

func (r *recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.Actor.ID == uuid.Nil {
		return fmt.Errorf("audit actor id is required")
	}
	if entry.Actor.Role == "" {
		return fmt.Errorf("audit actor role is required")
	}
	if entry.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	if entry.TargetType == "" || entry.TargetID == uuid.Nil {
		return fmt.Errorf("audit target is required")
	}

	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("marshaling before snapshot: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("marshaling after snapshot: %w", err)
	}

	row := &models.AuditLogEntry{
		ActorID:     entry.Actor.ID,
		ActorRole:   entry.Actor.Role,
		Action:      entry.Action,
		TargetType:  entry.TargetType,
		TargetID:    entry.TargetID,
		BeforeValue: before,
		AfterValue:  after,
	}
	if entry.Reason != "" {
		reason := entry.Reason
		row.Reason = &reason
	}
	if entry.Actor.ClientIP != "" {
		ip := entry.Actor.ClientIP
		row.ClientIP = &ip
	}
	if entry.Actor.UserAgent != "" {
		ua := entry.Actor.UserAgent
		row.UserAgent = &ua
	}

	return r.repo.WithTx(tx).Create(ctx, row)
}

func (r *recorder) ListByTarget(ctx context.Context, targetType string, targetID uuid.UUID, params pagination.Params) ([]models.AuditLogEntry, error) {
	if targetType == "" || targetID == uuid.Nil {
		return nil, fmt.Errorf("audit target is required")
	}
	return r.repo.ListByTarget(ctx, targetType, targetID, params)
}

func marshalSnapshot(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
