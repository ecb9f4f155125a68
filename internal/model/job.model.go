package model

import "time"

// Campaign job trigger sources.
const (
	JobTriggerAPI       = "api"
	JobTriggerScheduler = "scheduler"
)

// CampaignJob is the queue payload that asks a dispatcher to run a campaign.
// The row itself stays in Postgres; the job only names it, so a redelivered
// job is safe to re-run against the campaign's status machine. JobID survives
// redeliveries, which is what makes retries of one trigger traceable in logs.
type CampaignJob struct {
	JobID       string    `json:"job_id"`
	CampaignID  int64     `json:"campaign_id"`
	TriggeredBy string    `json:"triggered_by"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
