package service

import (
	"fmt"
	"math"
	"time"

	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
)

type StreakSummary struct {
	CheckInStreak    int  `json:"checkInStreak"`
	NonRelapseStreak int  `json:"nonRelapseStreak"`
	LongestStreak    int  `json:"longestStreak"`
	TotalCheckIns    int  `json:"totalCheckIns"`
	CheckedInToday   bool `json:"checkedInToday"`
}

// dayIndex maps a calendar day to whether its check-in was a relapse.
type dayIndex map[int64]bool

func dayKey(t time.Time) int64 {
	return calendar.NormalizeDay(t).Unix() / 86400
}

func indexCheckIns(checkIns []*model.CheckIn) dayIndex {
	idx := make(dayIndex, len(checkIns))
	for _, c := range checkIns {
		idx[dayKey(c.CheckInDate)] = c.Relapse
	}
	return idx
}

// walk counts consecutive days back from today (or yesterday when today has
// no check-in) for which ok holds.
func (idx dayIndex) walk(today time.Time, ok func(relapse bool) bool) int {
	anchor := dayKey(today)
	if _, present := idx[anchor]; !present {
		anchor--
	}

	streak := 0
	for k := anchor; ; k-- {
		relapse, present := idx[k]
		if !present || !ok(relapse) {
			break
		}
		streak++
	}
	return streak
}

func (idx dayIndex) longest() int {
	best := 0
	for k := range idx {
		if _, hasPrev := idx[k-1]; hasPrev {
			continue
		}
		run := int64(1)
		for {
			if _, present := idx[k+run]; !present {
				break
			}
			run++
		}
		best = max(best, int(run))
	}
	return best
}

// CheckInStreak counts consecutive days with a check-in ending today,
// or yesterday if the user has not checked in yet today.
func CheckInStreak(checkIns []*model.CheckIn, today time.Time) int {
	return indexCheckIns(checkIns).walk(today, func(bool) bool { return true })
}

// NonRelapseStreak is CheckInStreak where a relapse day also ends the run.
func NonRelapseStreak(checkIns []*model.CheckIn, today time.Time) int {
	return indexCheckIns(checkIns).walk(today, func(relapse bool) bool { return !relapse })
}

// LongestStreak is the longest run of consecutive check-in days ever recorded.
func LongestStreak(checkIns []*model.CheckIn) int {
	return indexCheckIns(checkIns).longest()
}

// SummarizeStreaks computes every streak from a single index.
func SummarizeStreaks(checkIns []*model.CheckIn, today time.Time) *StreakSummary {
	idx := indexCheckIns(checkIns)
	_, checkedInToday := idx[dayKey(today)]
	return &StreakSummary{
		CheckInStreak:    idx.walk(today, func(bool) bool { return true }),
		NonRelapseStreak: idx.walk(today, func(relapse bool) bool { return !relapse }),
		LongestStreak:    idx.longest(),
		TotalCheckIns:    len(idx),
		CheckedInToday:   checkedInToday,
	}
}

type StreakService struct {
	checkInRepo repository.CheckInRepository
	now         func() time.Time
}

func NewStreakService(checkInRepo repository.CheckInRepository) *StreakService {
	return &StreakService{
		checkInRepo: checkInRepo,
		now:         time.Now,
	}
}

func (s *StreakService) CheckInStreak(userID string) (int, error) {
	summary, err := s.Summary(userID)
	if err != nil {
		return 0, err
	}
	return summary.CheckInStreak, nil
}

func (s *StreakService) NonRelapseStreak(userID string) (int, error) {
	summary, err := s.Summary(userID)
	if err != nil {
		return 0, err
	}
	return summary.NonRelapseStreak, nil
}

func (s *StreakService) Summary(userID string) (*StreakSummary, error) {
	checkIns, err := s.checkInRepo.All(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}
	return SummarizeStreaks(checkIns, calendar.Today(s.now())), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
