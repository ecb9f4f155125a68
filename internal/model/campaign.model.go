package model

import (
	"errors"
	"time"
)

// CampaignStatus is the send-job lifecycle. Paused and soft-deletion are
// orthogonal flags, not statuses.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return next == CampaignStatusScheduled || next == CampaignStatusSending
	case CampaignStatusScheduled:
		return next == CampaignStatusSending
	case CampaignStatusSending:
		return next == CampaignStatusCompleted
	default:
		return false
	}
}

type Campaign struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Payload     PushPayload    `json:"payload"`
	Segments    []string       `json:"segments"` // target audience tags; empty = all active
	Status      CampaignStatus `json:"status"`
	Paused      bool           `json:"paused"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	SentCount   int            `json:"sent_count"`
	FailedCount int            `json:"failed_count"`
	SkipCount   int            `json:"skip_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignCreateRequest is the input for creating a draft campaign.
type CampaignCreateRequest struct {
	Name        string
	Payload     PushPayload
	Segments    []string
	ScheduledAt *time.Time
}

func (p CampaignCreateRequest) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Payload.Title == "" {
		return errors.New("payload title is required")
	}
	if p.Payload.Body == "" {
		return errors.New("payload body is required")
	}
	return nil
}

// CampaignFilter controls List queries.
type CampaignFilter struct {
	Statuses       []CampaignStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
	Desc           bool
}
