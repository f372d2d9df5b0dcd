package model

import (
	"time"
)

const (
	StrategyDifficultyBeginner     = "beginner"
	StrategyDifficultyIntermediate = "intermediate"
	StrategyDifficultyAdvanced     = "advanced"
)

var StrategyDifficulties = []string{
	StrategyDifficultyBeginner,
	StrategyDifficultyIntermediate,
	StrategyDifficultyAdvanced,
}

var StrategyCategories = []string{
	"cognitive",
	"behavioral",
	"mindfulness",
	"emotional",
	"social",
	"emergency",
	"physiological",
	"motivational",
}

const (
	TriggerContextStress       = "stress"
	TriggerContextBoredom      = "boredom"
	TriggerContextLoneliness   = "loneliness"
	TriggerContextAnxiety      = "anxiety"
	TriggerContextHabit        = "habit"
	TriggerContextPeerPressure = "peer_pressure"
	TriggerContextOther        = "other"
)

var TriggerContexts = []string{
	TriggerContextStress,
	TriggerContextBoredom,
	TriggerContextLoneliness,
	TriggerContextAnxiety,
	TriggerContextHabit,
	TriggerContextPeerPressure,
	TriggerContextOther,
}

const (
	EnvironmentHome        = "home"
	EnvironmentWork        = "work"
	EnvironmentSchool      = "school"
	EnvironmentPublic      = "public"
	EnvironmentSocialEvent = "social_event"
	EnvironmentOther       = "other"
)

var Environments = []string{
	EnvironmentHome,
	EnvironmentWork,
	EnvironmentSchool,
	EnvironmentPublic,
	EnvironmentSocialEvent,
	EnvironmentOther,
}

// CopingStrategy is either a global catalog entry (UserID nil) or a
// strategy a user added for themselves.
type CopingStrategy struct {
	ID              string     `db:"id" json:"id"`
	UserID          *string    `db:"user_id" json:"userId"`
	StrategyType    string     `db:"strategy_type" json:"strategyType"`
	DisplayName     string     `db:"display_name" json:"displayName"`
	Description     string     `db:"description" json:"description"`
	Category        string     `db:"category" json:"category"`
	CategoryLabel   string     `db:"-" json:"categoryLabel"`
	Difficulty      string     `db:"difficulty" json:"difficulty"`
	DurationMinutes int        `db:"duration_minutes" json:"durationMinutes"`
	Instructions    string     `db:"instructions" json:"instructions"` // sanitized HTML
	Tags            StringList `db:"tags" json:"tags"`
	TriggersHelped  StringList `db:"triggers_helped" json:"triggersHelped"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
}

func (s *CopingStrategy) IsGlobal() bool {
	return s.UserID == nil
}

type CopingUsage struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 string     `db:"user_id" json:"userId"`
	StrategyID             string     `db:"strategy_id" json:"strategyId"`
	UsedAt                 time.Time  `db:"used_at" json:"usedAt"`
	CravingIntensityBefore int        `db:"craving_before" json:"cravingIntensityBefore"`
	CravingIntensityAfter  *int       `db:"craving_after" json:"cravingIntensityAfter"`
	TriggerContext         string     `db:"trigger_context" json:"triggerContext"`
	Environment            string     `db:"environment" json:"environment"`
	Notes                  string     `db:"notes" json:"notes"`
	EffectivenessRating    *int       `db:"effectiveness_rating" json:"effectivenessRating"`
	CompletedAt            *time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
}

func (u *CopingUsage) IsCompleted() bool {
	return u.CompletedAt != nil
}

// StrategyEffectiveness is the per-strategy rating aggregate used by trends.
type StrategyEffectiveness struct {
	StrategyID    string  `db:"strategy_id" json:"strategyId"`
	DisplayName   string  `db:"display_name" json:"displayName"`
	Category      string  `db:"category" json:"category"`
	AverageRating float64 `db:"average_rating" json:"averageRating"`
	TimesUsed     int     `db:"times_used" json:"timesUsed"`
}
