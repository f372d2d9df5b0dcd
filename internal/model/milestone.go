package model

import (
	"time"
)

const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusCompleted = "completed"
	MilestoneStatusFailed    = "failed"
)

const (
	MedalGold   = "gold"
	MedalSilver = "silver"
	MedalBronze = "bronze"
)

// PassThreshold is the minimum completion percentage that completes a window.
const PassThreshold = 70.0

type Milestone struct {
	ID                   string     `db:"id" json:"id"`
	UserID               string     `db:"user_id" json:"userId"`
	MilestoneDays        int        `db:"milestone_days" json:"milestoneDays"`
	Status               string     `db:"status" json:"status"`
	StartDate            time.Time  `db:"start_date" json:"startDate"`
	EndDate              time.Time  `db:"end_date" json:"endDate"`
	CompletionPercentage float64    `db:"completion_percentage" json:"completionPercentage"`
	RelapsePercentage    float64    `db:"relapse_percentage" json:"relapsePercentage"`
	TotalCheckIns        int        `db:"total_check_ins" json:"totalCheckIns"`
	TotalRelapses        int        `db:"total_relapses" json:"totalRelapses"`
	Medal                *string    `db:"medal" json:"medal"`
	AchievedDate         *time.Time `db:"achieved_date" json:"achievedDate"`
	AttemptNumber        int        `db:"attempt_number" json:"attemptNumber"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

func (m *Milestone) IsPending() bool {
	return m.Status == MilestoneStatusPending
}

func (m *Milestone) IsCompleted() bool {
	return m.Status == MilestoneStatusCompleted
}

func (m *Milestone) IsFailed() bool {
	return m.Status == MilestoneStatusFailed
}

// GradeMedal maps a relapse percentage to a medal.
func GradeMedal(relapsePct float64) string {
	switch {
	case relapsePct <= 20:
		return MedalGold
	case relapsePct <= 50:
		return MedalSilver
	default:
		return MedalBronze
	}
}

// Passes reports whether a completion percentage meets the pass threshold.
func Passes(completionPct float64) bool {
	return completionPct >= PassThreshold
}
