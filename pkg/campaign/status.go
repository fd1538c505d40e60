package campaign

import (
	"strings"

	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/history"
)

// Status is a campaign lifecycle state. Values outside the constants below
// are never written; ParseStatus is the only way to build one from input.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPlanning        Status = "PLANNING"
	StatusDesignComplete  Status = "DESIGN_COMPLETE"
	StatusApprovalPending Status = "APPROVAL_PENDING"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusEditing         Status = "EDITING"
	StatusReady           Status = "READY"
	StatusRunning         Status = "RUNNING"
	StatusPaused          Status = "PAUSED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// pendingApprovalAlias is accepted on input and stored as StatusApprovalPending
const pendingApprovalAlias = "PENDING_APPROVAL"

var labels = map[Status]string{
	StatusDraft:           "초안",
	StatusPlanning:        "기획중",
	StatusDesignComplete:  "설계완료",
	StatusApprovalPending: "승인대기",
	StatusApproved:        "승인완료",
	StatusRejected:        "반려",
	StatusEditing:         "수정중",
	StatusReady:           "준비완료",
	StatusRunning:         "진행중",
	StatusPaused:          "일시중지",
	StatusCompleted:       "완료",
	StatusCancelled:       "취소",
}

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusDraft, StatusPlanning, StatusDesignComplete, StatusApprovalPending, StatusApproved,
	StatusRejected, StatusEditing, StatusReady, StatusRunning, StatusPaused, StatusCompleted,
	StatusCancelled,
}

// DeletableStatuses may be hard-deleted
var DeletableStatuses = []Status{StatusDraft, StatusPlanning, StatusRejected}

// SubmittableStatuses may be submitted for approval
var SubmittableStatuses = []Status{StatusDraft, StatusPlanning, StatusDesignComplete, StatusEditing, StatusRejected}

// ParseStatus validates s. Matching is case-insensitive and PENDING_APPROVAL
// is normalised to APPROVAL_PENDING.
func ParseStatus(s string) (Status, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == pendingApprovalAlias {
		return StatusApprovalPending, nil
	}
	if _, ok := labels[Status(v)]; ok {
		return Status(v), nil
	}
	return "", domain.NewValidationError("유효하지 않은 캠페인 상태입니다.").
		WithDetails(map[string]any{"status": s, "allowed_statuses": AllStatuses})
}

// Label is the Korean display name
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) in(set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Deletable reports whether a campaign in s may be deleted
func (s Status) Deletable() bool { return s.in(DeletableStatuses) }

// Submittable reports whether a campaign in s may be submitted for approval
func (s Status) Submittable() bool { return s.in(SubmittableStatuses) }

// Terminal reports whether s ends the lifecycle
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// TransitionLabeler names the history action recorded for a status change.
// Call sites pass both ends of the edge so a pair-based table can replace
// the default without touching them.
type TransitionLabeler func(from, to Status) history.ActionType

// DestinationLabel derives the action from the destination status alone.
func DestinationLabel(_, to Status) history.ActionType {
	switch to {
	case StatusApproved:
		return history.ActionApproved
	case StatusRejected:
		return history.ActionRejected
	case StatusRunning:
		return history.ActionStarted
	case StatusPaused:
		return history.ActionPaused
	case StatusCompleted:
		return history.ActionCompleted
	case StatusCancelled:
		return history.ActionCancelled
	default:
		return history.ActionUpdated
	}
}

// TransitionComment renders "초안 → 기획중" for history comments
func TransitionComment(from, to Status) string {
	return from.Label() + " → " + to.Label()
}
