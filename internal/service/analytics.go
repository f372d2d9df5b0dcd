package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrInvalidPeriod = errors.New("invalid period")

const (
	topTriggerLimit  = 10
	topStrategyLimit = 5
)

// durationDays maps trend durations to look-back days; 0 means all history.
var durationDays = map[string]int{
	"7d":   7,
	"30d":  30,
	"365d": 365,
	"all":  0,
}

type CheckInSummary struct {
	TotalCheckIns int      `json:"totalCheckIns"`
	AvgMood       *float64 `json:"avgMood"`
	AvgEnergy     *float64 `json:"avgEnergy"`
	AvgUrge       *float64 `json:"avgUrge"`
}

type Overview struct {
	Streaks *StreakSummary  `json:"streaks"`
	Summary *CheckInSummary `json:"summary"`
}

type TimeSeriesPoint struct {
	Date        string `json:"date"`
	MoodLevel   *int   `json:"moodLevel"`
	EnergyLevel *int   `json:"energyLevel"`
	UrgeLevel   *int   `json:"urgeLevel"`
}

type TriggerTrend struct {
	Trigger            string  `json:"trigger"`
	TotalOccurrences   int     `json:"totalOccurrences"`
	ResistedCount      int     `json:"resistedCount"`
	ResistedPercentage float64 `json:"resistedPercentage"`
}

type Trends struct {
	Duration      string                         `json:"duration"`
	StartDate     time.Time                      `json:"startDate"`
	EndDate       time.Time                      `json:"endDate"`
	TopTriggers   []*TriggerTrend                `json:"topTriggers"`
	TopStrategies []*model.StrategyEffectiveness `json:"topStrategies"`
}

type AnalyticsService struct {
	checkInRepo         repository.CheckInRepository
	copingRepo          repository.CopingRepository
	subscriptionService *SubscriptionService
	now                 func() time.Time
}

func NewAnalyticsService(
	checkInRepo repository.CheckInRepository,
	copingRepo repository.CopingRepository,
	subscriptionService *SubscriptionService,
) *AnalyticsService {
	return &AnalyticsService{
		checkInRepo:         checkInRepo,
		copingRepo:          copingRepo,
		subscriptionService: subscriptionService,
		now:                 time.Now,
	}
}

// Overview returns both streaks and the last week's averages.
func (s *AnalyticsService) Overview(userID string) (*Overview, error) {
	today := calendar.Today(s.now())
	out := &Overview{}

	var g errgroup.Group
	g.Go(func() error {
		checkIns, err := s.checkInRepo.All(userID)
		if err != nil {
			return fmt.Errorf("failed to load check-ins: %w", err)
		}
		out.Streaks = SummarizeStreaks(checkIns, today)
		return nil
	})
	g.Go(func() error {
		summary, err := s.summary(userID, calendar.AddDays(today, -7), today)
		out.Summary = summary
		return err
	})
	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AnalyticsService) summary(userID string, from, to time.Time) (*CheckInSummary, error) {
	checkIns, err := s.checkInRepo.InRange(userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}

	summary := &CheckInSummary{TotalCheckIns: len(checkIns)}
	if len(checkIns) == 0 {
		return summary, nil
	}

	var mood, energy, urge int
	for _, c := range checkIns {
		mood += c.Mood
		energy += c.EnergyLevel
		urge += c.UrgeLevel
	}
	n := float64(len(checkIns))
	avg := func(total int) *float64 {
		v := round1(float64(total) / n)
		return &v
	}
	summary.AvgMood = avg(mood)
	summary.AvgEnergy = avg(energy)
	summary.AvgUrge = avg(urge)
	return summary, nil
}

// TimeSeries returns one point per day for the last 7 or 30 days, ending
// today. Days without a check-in carry nil levels.
func (s *AnalyticsService) TimeSeries(userID string, days int) ([]*TimeSeriesPoint, error) {
	switch days {
	case 7:
	case 30:
		err := s.subscriptionService.RequireFeature(userID, model.FeatureAdvancedAnalytics)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidPeriod
	}

	end := calendar.Today(s.now())
	start := calendar.AddDays(end, -(days - 1))
	checkIns, err := s.checkInRepo.InRange(userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}

	byDay := make(map[string]*model.CheckIn, len(checkIns))
	for _, c := range checkIns {
		byDay[calendar.Format(c.CheckInDate)] = c
	}

	points := make([]*TimeSeriesPoint, 0, days)
	for i := 0; i < days; i++ {
		key := calendar.Format(calendar.AddDays(start, i))
		p := &TimeSeriesPoint{Date: key}
		if c, ok := byDay[key]; ok {
			p.MoodLevel = &c.Mood
			p.EnergyLevel = &c.EnergyLevel
			p.UrgeLevel = &c.UrgeLevel
		}
		points = append(points, p)
	}
	return points, nil
}

// Trends ranks triggers by frequency and strategies by rating over duration
// (7d, 30d, 365d or all). Anything beyond 7d needs premium.
func (s *AnalyticsService) Trends(userID, duration string) (*Trends, error) {
	if duration == "" {
		duration = "30d"
	}
	days, ok := durationDays[duration]
	if !ok {
		return nil, ErrInvalidPeriod
	}
	if duration != "7d" {
		err := s.subscriptionService.RequireFeature(userID, model.FeatureAdvancedAnalytics)
		if err != nil {
			return nil, err
		}
	}

	today := calendar.Today(s.now())
	start := time.Unix(0, 0).UTC()
	if days > 0 {
		start = calendar.AddDays(today, -days)
	}
	out := &Trends{Duration: duration, StartDate: start, EndDate: today}

	var g errgroup.Group
	g.Go(func() error {
		checkIns, err := s.checkInRepo.InRange(userID, start, today)
		if err != nil {
			return fmt.Errorf("failed to load check-ins: %w", err)
		}
		out.TopTriggers = rankTriggers(checkIns)
		return nil
	})
	g.Go(func() error {
		top, err := s.copingRepo.TopStrategies(userID, start, topStrategyLimit)
		if err != nil {
			return fmt.Errorf("failed to rank strategies: %w", err)
		}
		for _, t := range top {
			t.AverageRating = round1(t.AverageRating)
		}
		out.TopStrategies = top
		return nil
	})
	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func rankTriggers(checkIns []*model.CheckIn) []*TriggerTrend {
	// Casers are stateful, one per call
	lower := cases.Lower(language.Und)
	byName := map[string]*TriggerTrend{}
	for _, c := range checkIns {
		for _, raw := range c.Triggers {
			name := lower.String(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			t, ok := byName[name]
			if !ok {
				t = &TriggerTrend{Trigger: name}
				byName[name] = t
			}
			t.TotalOccurrences++
			if !c.Relapse {
				t.ResistedCount++
			}
		}
	}

	trends := make([]*TriggerTrend, 0, len(byName))
	for _, t := range byName {
		t.ResistedPercentage = round1(float64(t.ResistedCount) / float64(t.TotalOccurrences) * 100)
		trends = append(trends, t)
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].TotalOccurrences != trends[j].TotalOccurrences {
			return trends[i].TotalOccurrences > trends[j].TotalOccurrences
		}
		return trends[i].Trigger < trends[j].Trigger
	})
	if len(trends) > topTriggerLimit {
		trends = trends[:topTriggerLimit]
	}
	return trends
}
