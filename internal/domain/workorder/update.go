package workorder

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/shared"
)

// UpdateKind distinguishes free-text comments from recorded status changes.
type UpdateKind string

const (
	UpdateKindComment      UpdateKind = "comment"
	UpdateKindStatusChange UpdateKind = "status_change"
)

// Update is one entry in a work order's history thread.
type Update struct {
	ID          int64
	WorkOrderID int64
	AuthorID    uuid.UUID
	Kind        UpdateKind
	Body        string
	FromStatus  *Status
	ToStatus    *Status
	CreatedAt   time.Time
}

// NewComment creates a comment entry.
func NewComment(workOrderID int64, author uuid.UUID, body string) (*Update, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, shared.ValidationError("body is required")
	}
	if len(body) > 4000 {
		return nil, shared.ValidationError("body must be at most 4000 characters")
	}
	return &Update{
		WorkOrderID: workOrderID,
		AuthorID:    author,
		Kind:        UpdateKindComment,
		Body:        body,
		CreatedAt:   time.Now(),
	}, nil
}

// NewStatusChange records a transition performed by author.
func NewStatusChange(workOrderID int64, author uuid.UUID, from, to Status) *Update {
	return &Update{
		WorkOrderID: workOrderID,
		AuthorID:    author,
		Kind:        UpdateKindStatusChange,
		Body:        "Status changed from " + from.String() + " to " + to.String(),
		FromStatus:  &from,
		ToStatus:    &to,
		CreatedAt:   time.Now(),
	}
}
