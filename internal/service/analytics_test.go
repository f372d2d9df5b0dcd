package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/model"
)

func (f *fixture) analytics() *AnalyticsService {
	svc := NewAnalyticsService(f.checkIns, f.coping, NewSubscriptionService(f.subs))
	svc.now = f.now
	return svc
}

func (f *fixture) subscribe(userID, plan string) {
	f.t.Helper()
	now := time.Now().UTC()
	sub := &model.Subscription{ID: uuid.New().String(), UserID: userID, PlanID: plan, Status: model.SubscriptionStatusActive, Currency: "usd", CreatedAt: now, UpdatedAt: now}
	if err := f.subs.Create(sub); err != nil {
		f.t.Fatalf("create subscription failed: %v", err)
	}
}

func (f *fixture) detailedCheckIn(userID string, day time.Time, mood, energy, urge int, relapse bool, triggers ...string) {
	f.t.Helper()
	c := &model.CheckIn{ID: uuid.New().String(), UserID: userID, CheckInDate: day, Mood: mood, EnergyLevel: energy, UrgeLevel: urge, Relapse: relapse, Triggers: triggers, CreatedAt: day}
	if err := f.checkIns.Create(c); err != nil {
		f.t.Fatalf("create check-in failed: %v", err)
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.today = d(2024, 3, 10)
	f.detailedCheckIn(user.ID, d(2024, 3, 10), 4, 3, 1, false)
	f.detailedCheckIn(user.ID, d(2024, 3, 9), 3, 2, 2, false)
	f.detailedCheckIn(user.ID, d(2024, 3, 8), 2, 2, 4, true)
	f.detailedCheckIn(user.ID, d(2024, 2, 1), 5, 5, 0, false)

	o, err := f.analytics().Overview(user.ID)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if o.Streaks.CheckInStreak != 3 || o.Streaks.NonRelapseStreak != 2 {
		t.Errorf("streaks = %+v", o.Streaks)
	}
	if o.Summary.TotalCheckIns != 3 || *o.Summary.AvgMood != 3 || *o.Summary.AvgEnergy != 2.3 || *o.Summary.AvgUrge != 2.3 {
		t.Errorf("summary = %+v", o.Summary)
	}
}

func TestOverviewEmpty(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.today = d(2024, 3, 10)

	o, err := f.analytics().Overview(user.ID)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if o.Summary.TotalCheckIns != 0 || o.Summary.AvgMood != nil {
		t.Errorf("empty summary should have nil averages: %+v", o.Summary)
	}
}

func TestTimeSeries(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.today = d(2024, 3, 10)
	f.detailedCheckIn(user.ID, d(2024, 3, 4), 2, 1, 1, false)
	f.detailedCheckIn(user.ID, d(2024, 3, 10), 5, 4, 0, false)
	f.detailedCheckIn(user.ID, d(2024, 3, 3), 1, 1, 1, false)
	svc := f.analytics()

	points, err := svc.TimeSeries(user.ID, 7)
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if len(points) != 7 || points[0].Date != "2024-03-04" || points[6].Date != "2024-03-10" {
		t.Fatalf("unexpected range: %d points", len(points))
	}
	if points[0].MoodLevel == nil || *points[0].MoodLevel != 2 || points[1].MoodLevel != nil || *points[6].EnergyLevel != 4 {
		t.Errorf("gap filling wrong: %+v %+v", points[0], points[1])
	}

	if _, err := svc.TimeSeries(user.ID, 30); !errors.Is(err, ErrPremiumRequired) {
		t.Errorf("30 days on free plan: expected ErrPremiumRequired, got %v", err)
	}
	if _, err := svc.TimeSeries(user.ID, 14); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}

	f.subscribe(user.ID, model.SubscriptionPlanPremium)
	points, err = svc.TimeSeries(user.ID, 30)
	if err != nil || len(points) != 30 {
		t.Errorf("premium 30-day series: %d points, %v", len(points), err)
	}
}

func TestTrends(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.today = d(2024, 3, 10)
	f.subscribe(user.ID, model.SubscriptionPlanPremium)

	f.detailedCheckIn(user.ID, d(2024, 3, 10), 3, 3, 3, false, "Stress", "boredom")
	f.detailedCheckIn(user.ID, d(2024, 3, 9), 3, 3, 3, true, "stress")
	f.detailedCheckIn(user.ID, d(2024, 3, 8), 3, 3, 3, false, "STRESS", "party")
	f.detailedCheckIn(user.ID, d(2023, 3, 8), 3, 3, 3, true, "ancient")

	strategy := &model.CopingStrategy{ID: uuid.New().String(), StrategyType: "urge_surfing", DisplayName: "Urge surfing", Category: "mindfulness", Difficulty: model.StrategyDifficultyBeginner, CreatedAt: time.Now().UTC()}
	if err := f.coping.CreateStrategy(strategy); err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}
	for _, r := range []int{5, 4, 4} {
		rating := r
		u := &model.CopingUsage{ID: uuid.New().String(), UserID: user.ID, StrategyID: strategy.ID, UsedAt: d(2024, 3, 9), CravingIntensityBefore: 4, TriggerContext: model.TriggerContextStress, Environment: model.EnvironmentHome, EffectivenessRating: &rating, CreatedAt: time.Now().UTC()}
		if err := f.coping.CreateUsage(u); err != nil {
			t.Fatalf("CreateUsage failed: %v", err)
		}
	}

	trends, err := f.analytics().Trends(user.ID, "30d")
	if err != nil {
		t.Fatalf("Trends failed: %v", err)
	}
	if !trends.StartDate.Equal(d(2024, 2, 9)) {
		t.Errorf("start = %v", trends.StartDate)
	}
	if len(trends.TopTriggers) != 3 {
		t.Fatalf("triggers = %+v", trends.TopTriggers)
	}
	top := trends.TopTriggers[0]
	if top.Trigger != "stress" || top.TotalOccurrences != 3 || top.ResistedCount != 2 || top.ResistedPercentage != 66.7 {
		t.Errorf("top trigger = %+v", top)
	}
	if trends.TopTriggers[1].Trigger != "boredom" {
		t.Errorf("ties should sort by name, got %s", trends.TopTriggers[1].Trigger)
	}
	if len(trends.TopStrategies) != 1 || trends.TopStrategies[0].AverageRating != 4.3 || trends.TopStrategies[0].Category != "mindfulness" {
		t.Errorf("strategies = %+v", trends.TopStrategies)
	}

	all, err := f.analytics().Trends(user.ID, "all")
	if err != nil {
		t.Fatalf("Trends all failed: %v", err)
	}
	if len(all.TopTriggers) != 4 {
		t.Errorf("all-time triggers = %d, want 4", len(all.TopTriggers))
	}

	if _, err := f.analytics().Trends(user.ID, "90d"); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestTrendsFreePlan(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.today = d(2024, 3, 10)
	f.subscribe(user.ID, model.SubscriptionPlanFree)
	svc := f.analytics()

	if _, err := svc.Trends(user.ID, "7d"); err != nil {
		t.Errorf("7d trends should be free: %v", err)
	}
	if _, err := svc.Trends(user.ID, ""); !errors.Is(err, ErrPremiumRequired) {
		t.Errorf("default 30d on free plan: expected ErrPremiumRequired, got %v", err)
	}
}
