package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidMilestoneState is logged when a stored pending window does not
	// match the recomputed one. The stored dates win.
	ErrInvalidMilestoneState = errors.New("pending milestone window does not match computed window")
)

const (
	msgAllMilestonesCompleted = "All milestones completed!"
	msgNotYetDue              = "Milestone period not yet completed"
)

type ResetInfo struct {
	FailedMilestone int       `json:"failedMilestone"`
	RestartFromDay  int       `json:"restartFromDay"`
	NewStartDate    time.Time `json:"newStartDate"`
	NewEndDate      time.Time `json:"newEndDate"`
}

type EvaluationResult struct {
	MilestoneChecked     *model.Milestone `json:"milestoneChecked"`
	NewMilestoneCreated  *model.Milestone `json:"newMilestoneCreated"`
	Message              string           `json:"message"`
	ShouldResetMilestone bool             `json:"shouldResetMilestone"`
	ResetInfo            *ResetInfo       `json:"resetInfo,omitempty"`
	LadderExhausted      bool             `json:"ladderExhausted"`
	NotYetDue            bool             `json:"notYetDue"`
}

type ProgressView struct {
	AllCompleted               bool      `json:"allCompleted"`
	CompletedMilestones        []int     `json:"completedMilestones,omitempty"`
	Message                    string    `json:"message,omitempty"`
	CurrentMilestone           int       `json:"currentMilestone"`
	StartDate                  time.Time `json:"startDate"`
	EndDate                    time.Time `json:"endDate"`
	DaysElapsed                int       `json:"daysElapsed"`
	DaysLeft                   int       `json:"daysLeft"`
	DaysRemaining              int       `json:"daysRemaining"`
	TotalDays                  int       `json:"totalDays"`
	CompletionPercentage       float64   `json:"completionPercentage"`
	RelapsePercentage          float64   `json:"relapsePercentage"`
	TotalCheckIns              int       `json:"totalCheckIns"`
	TotalRelapses              int       `json:"totalRelapses"`
	IsOnTrack                  bool      `json:"isOnTrack"`
	ProjectedMedal             string    `json:"projectedMedal,omitempty"`
	AttemptNumber              int       `json:"attemptNumber"`
	PreviousCompletedMilestone int       `json:"previousCompletedMilestone"`
}

type MilestoneGroup struct {
	MilestoneDays int                `json:"milestoneDays"`
	Attempts      []*model.Milestone `json:"attempts"`
	TotalAttempts int                `json:"totalAttempts"`
	Completed     bool               `json:"completed"`
	Failed        int                `json:"failed"`
}

type MedalTally struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Bronze int `json:"bronze"`
}

func (t *MedalTally) add(medal *string) {
	if medal == nil {
		return
	}
	switch *medal {
	case model.MedalGold:
		t.Gold++
	case model.MedalSilver:
		t.Silver++
	case model.MedalBronze:
		t.Bronze++
	}
}

type HistorySummary struct {
	TotalMilestones     int        `json:"totalMilestones"`
	CompletedMilestones int        `json:"completedMilestones"`
	InProgress          int        `json:"inProgress"`
	Medals              MedalTally `json:"medals"`
}

type HistoryView struct {
	All     []*model.Milestone `json:"all"`
	Groups  []*MilestoneGroup  `json:"groups"`
	Summary HistorySummary     `json:"summary"`
}

type MilestoneStats struct {
	Progress          *ProgressView `json:"currentProgress"`
	History           *HistoryView  `json:"history"`
	TotalCompleted    int           `json:"totalCompleted"`
	TotalFailed       int           `json:"totalFailed"`
	HighestMilestone  int           `json:"highestMilestone"`
	Medals            MedalTally    `json:"medals"`
	AverageCompletion float64       `json:"averageCompletion"`
	AverageRelapse    float64       `json:"averageRelapse"`
	SuccessRate       float64       `json:"successRate"`
}

// MilestoneNotifier is told about completed milestones.
type MilestoneNotifier interface {
	SendMilestoneAchieved(user *model.User, m *model.Milestone) error
}

type MilestoneService struct {
	userRepo      repository.UserRepository
	checkInRepo   repository.CheckInRepository
	milestoneRepo repository.MilestoneRepository
	locker        UserLocker
	notifier      MilestoneNotifier
	now           func() time.Time
}

func NewMilestoneService(
	userRepo repository.UserRepository,
	checkInRepo repository.CheckInRepository,
	milestoneRepo repository.MilestoneRepository,
	locker UserLocker,
	notifier MilestoneNotifier,
) *MilestoneService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &MilestoneService{
		userRepo:      userRepo,
		checkInRepo:   checkInRepo,
		milestoneRepo: milestoneRepo,
		locker:        locker,
		notifier:      notifier,
		now:           time.Now,
	}
}

// window is the active milestone attempt for a user.
type window struct {
	target        int
	start         time.Time
	end           time.Time
	lastCompleted *model.Milestone
	pending       *model.Milestone
}

// previousCompleted is 0 before the first completed rung.
func (w *window) previousCompleted() int {
	if w.lastCompleted == nil {
		return 0
	}
	return w.lastCompleted.MilestoneDays
}

// activeWindow returns nil once every rung is completed.
func (s *MilestoneService) activeWindow(user *model.User) (*window, error) {
	completed, err := s.milestoneRepo.Completed(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed milestones: %w", err)
	}

	var last *model.Milestone
	for _, m := range completed {
		if model.IsRung(m.MilestoneDays) {
			last = m
			break
		}
	}

	lastDays := 0
	start := calendar.NormalizeDay(user.CreatedAt)
	if last != nil {
		lastDays = last.MilestoneDays
		start = calendar.AddDays(last.EndDate, 1)
	}

	target, ok := model.NextTarget(lastDays)
	if !ok {
		return nil, nil
	}

	w := &window{
		target:        target,
		start:         start,
		end:           calendar.AddDays(start, target-1),
		lastCompleted: last,
	}

	pending, err := s.milestoneRepo.Pending(user.ID, target)
	if err != nil && !errors.Is(err, repository.ErrMilestoneNotFound) {
		return nil, fmt.Errorf("failed to load pending milestone: %w", err)
	}
	if pending != nil {
		w.pending = pending
		storedStart := calendar.NormalizeDay(pending.StartDate)
		storedEnd := calendar.NormalizeDay(pending.EndDate)
		if !storedStart.Equal(w.start) || !storedEnd.Equal(w.end) {
			slog.Warn("milestone window mismatch, using stored dates",
				"error", ErrInvalidMilestoneState,
				"user_id", user.ID,
				"milestone_id", pending.ID,
				"stored_start", calendar.Format(storedStart),
				"computed_start", calendar.Format(w.start))
			w.start, w.end = storedStart, storedEnd
		}
	}

	return w, nil
}

type windowMetrics struct {
	checkIns   int
	relapses   int
	completion float64
	relapse    float64
}

func measure(checkIns []*model.CheckIn, expected int) windowMetrics {
	m := windowMetrics{checkIns: len(checkIns)}
	for _, c := range checkIns {
		if c.Relapse {
			m.relapses++
		}
	}
	if expected > 0 {
		m.completion = float64(m.checkIns) / float64(expected) * 100
	}
	if m.checkIns > 0 {
		m.relapse = float64(m.relapses) / float64(m.checkIns) * 100
	}
	return m
}

func (m windowMetrics) apply(row *model.Milestone) {
	row.CompletionPercentage = round2(m.completion)
	row.RelapsePercentage = round2(m.relapse)
	row.TotalCheckIns = m.checkIns
	row.TotalRelapses = m.relapses
}

// Evaluate resolves the user's active milestone window once it has elapsed.
// It is safe to call after every check-in.
func (s *MilestoneService) Evaluate(userID string) (*EvaluationResult, error) {
	unlock, err := s.locker.Lock(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := s.userRepo.ByID(userID)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluate(user)
	if errors.Is(err, repository.ErrDuplicatePendingMilestone) {
		slog.Warn("concurrent milestone write, re-reading state", "user_id", userID)
		result, err = s.evaluate(user)
	}
	if err != nil {
		return nil, err
	}

	if result.MilestoneChecked != nil && result.MilestoneChecked.IsCompleted() && s.notifier != nil {
		err := s.notifier.SendMilestoneAchieved(user, result.MilestoneChecked)
		if err != nil {
			slog.Error("failed to send milestone email", "error", err, "user_id", userID)
		}
	}

	return result, nil
}

func (s *MilestoneService) evaluate(user *model.User) (*EvaluationResult, error) {
	today := calendar.Today(s.now())

	w, err := s.activeWindow(user)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return &EvaluationResult{Message: msgAllMilestonesCompleted, LadderExhausted: true}, nil
	}
	if today.Before(w.end) {
		return &EvaluationResult{Message: msgNotYetDue, NotYetDue: true}, nil
	}

	checkIns, err := s.checkInRepo.InRange(user.ID, w.start, w.end)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}
	metrics := measure(checkIns, calendar.DaysBetweenInclusive(w.start, w.end))

	row := w.pending
	if row == nil {
		row, err = s.openAttempt(user.ID, w.target, w.start)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	metrics.apply(row)
	row.UpdatedAt = now

	if model.Passes(metrics.completion) {
		medal := model.GradeMedal(metrics.relapse)
		row.Status = model.MilestoneStatusCompleted
		row.Medal = &medal
		row.AchievedDate = &today

		err = s.milestoneRepo.Update(row)
		if err != nil {
			return nil, fmt.Errorf("failed to complete milestone: %w", err)
		}

		slog.Info("milestone completed", "user_id", user.ID, "days", row.MilestoneDays, "medal", medal)
		return &EvaluationResult{
			MilestoneChecked: row,
			Message:          fmt.Sprintf("🎉 Congratulations! %d-day milestone completed with %s medal!", row.MilestoneDays, medal),
		}, nil
	}

	row.Status = model.MilestoneStatusFailed

	// the retry keeps the same anchor: only a completed milestone moves it
	count, err := s.milestoneRepo.CountAttempts(user.ID, w.target)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	next := newAttempt(user.ID, w.target, w.start, count+1, now)

	err = s.milestoneRepo.FailAndRestart(row, next)
	if err != nil {
		return nil, fmt.Errorf("failed to restart milestone: %w", err)
	}

	restartFrom := model.PreviousTarget(w.target) + 1
	slog.Info("milestone failed", "user_id", user.ID, "days", row.MilestoneDays,
		"completion", row.CompletionPercentage, "next_attempt", next.AttemptNumber)

	return &EvaluationResult{
		MilestoneChecked:     row,
		NewMilestoneCreated:  next,
		ShouldResetMilestone: true,
		Message: fmt.Sprintf("⚠️ %d-day milestone failed (%s%% completion). Starting fresh attempt #%d from day %d!",
			row.MilestoneDays, strconv.FormatFloat(metrics.completion, 'f', 1, 64), next.AttemptNumber, restartFrom),
		ResetInfo: &ResetInfo{
			FailedMilestone: row.MilestoneDays,
			RestartFromDay:  restartFrom,
			NewStartDate:    next.StartDate,
			NewEndDate:      next.EndDate,
		},
	}, nil
}

// openAttempt creates the pending row for a window that has none yet.
func (s *MilestoneService) openAttempt(userID string, target int, start time.Time) (*model.Milestone, error) {
	count, err := s.milestoneRepo.CountAttempts(userID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	row := newAttempt(userID, target, start, count+1, s.now().UTC())
	err = s.milestoneRepo.Create(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone: %w", err)
	}
	return row, nil
}

func newAttempt(userID string, target int, start time.Time, attempt int, now time.Time) *model.Milestone {
	return &model.Milestone{
		ID:            uuid.New().String(),
		UserID:        userID,
		MilestoneDays: target,
		Status:        model.MilestoneStatusPending,
		StartDate:     start,
		EndDate:       calendar.AddDays(start, target-1),
		AttemptNumber: attempt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CurrentProgress reports the in-flight window without writing anything.
func (s *MilestoneService) CurrentProgress(userID string) (*ProgressView, error) {
	user, err := s.userRepo.ByID(userID)
	if err != nil {
		return nil, err
	}
	return s.progress(user)
}

func (s *MilestoneService) progress(user *model.User) (*ProgressView, error) {
	today := calendar.Today(s.now())

	w, err := s.activeWindow(user)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return &ProgressView{
			AllCompleted:        true,
			CompletedMilestones: model.Rungs(),
			Message:             msgAllMilestonesCompleted,
		}, nil
	}

	upper := calendar.Min(today, w.end)
	daysElapsed := max(0, calendar.DaysBetweenInclusive(w.start, upper))

	var checkIns []*model.CheckIn
	if daysElapsed > 0 {
		checkIns, err = s.checkInRepo.InRange(user.ID, w.start, upper)
		if err != nil {
			return nil, fmt.Errorf("failed to load check-ins: %w", err)
		}
	}
	metrics := measure(checkIns, min(daysElapsed, w.target))

	daysLeft := 0
	if today.Before(w.end) {
		daysLeft = max(0, calendar.DaysBetweenInclusive(today, w.end))
	}

	attempt := 0
	if w.pending != nil {
		attempt = w.pending.AttemptNumber
	} else {
		count, err := s.milestoneRepo.CountAttempts(user.ID, w.target)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		attempt = count + 1
	}

	return &ProgressView{
		CurrentMilestone:           w.target,
		StartDate:                  w.start,
		EndDate:                    w.end,
		DaysElapsed:                daysElapsed,
		DaysLeft:                   daysLeft,
		DaysRemaining:              max(0, w.target-daysElapsed),
		TotalDays:                  w.target,
		CompletionPercentage:       round2(metrics.completion),
		RelapsePercentage:          round2(metrics.relapse),
		TotalCheckIns:              metrics.checkIns,
		TotalRelapses:              metrics.relapses,
		IsOnTrack:                  model.Passes(metrics.completion),
		ProjectedMedal:             model.GradeMedal(metrics.relapse),
		AttemptNumber:              attempt,
		PreviousCompletedMilestone: w.previousCompleted(),
	}, nil
}

// History groups every attempt by rung.
func (s *MilestoneService) History(userID string) (*HistoryView, error) {
	_, err := s.userRepo.ByID(userID)
	if err != nil {
		return nil, err
	}
	return s.history(userID)
}

func (s *MilestoneService) history(userID string) (*HistoryView, error) {
	all, err := s.milestoneRepo.All(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestones: %w", err)
	}
	return GroupHistory(all), nil
}

// GroupHistory builds the history view from attempts sorted by rung then creation.
func GroupHistory(all []*model.Milestone) *HistoryView {
	view := &HistoryView{
		All:    all,
		Groups: []*MilestoneGroup{},
		Summary: HistorySummary{
			TotalMilestones: model.RungCount(),
		},
	}

	var group *MilestoneGroup
	pending := map[int]bool{}
	for _, m := range all {
		if group == nil || group.MilestoneDays != m.MilestoneDays {
			group = &MilestoneGroup{MilestoneDays: m.MilestoneDays, Attempts: []*model.Milestone{}}
			view.Groups = append(view.Groups, group)
		}
		group.Attempts = append(group.Attempts, m)
		group.TotalAttempts++

		switch m.Status {
		case model.MilestoneStatusCompleted:
			group.Completed = true
			view.Summary.Medals.add(m.Medal)
		case model.MilestoneStatusFailed:
			group.Failed++
		case model.MilestoneStatusPending:
			pending[m.MilestoneDays] = true
		}
	}

	for _, g := range view.Groups {
		if g.Completed {
			view.Summary.CompletedMilestones++
		} else if pending[g.MilestoneDays] {
			view.Summary.InProgress++
		}
	}

	return view
}

// Stats combines progress, history and aggregate attempt figures.
func (s *MilestoneService) Stats(userID string) (*MilestoneStats, error) {
	user, err := s.userRepo.ByID(userID)
	if err != nil {
		return nil, err
	}

	var progress *ProgressView
	var history *HistoryView

	var g errgroup.Group
	g.Go(func() error {
		var err error
		progress, err = s.progress(user)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.history(userID)
		return err
	})
	err = g.Wait()
	if err != nil {
		return nil, err
	}

	stats := &MilestoneStats{Progress: progress, History: history}

	var completionSum, relapseSum float64
	for _, m := range history.All {
		switch m.Status {
		case model.MilestoneStatusCompleted:
			stats.TotalCompleted++
			stats.HighestMilestone = max(stats.HighestMilestone, m.MilestoneDays)
			stats.Medals.add(m.Medal)
			completionSum += m.CompletionPercentage
			relapseSum += m.RelapsePercentage
		case model.MilestoneStatusFailed:
			stats.TotalFailed++
		}
	}

	if stats.TotalCompleted > 0 {
		stats.AverageCompletion = round2(completionSum / float64(stats.TotalCompleted))
		stats.AverageRelapse = round2(relapseSum / float64(stats.TotalCompleted))
	}
	if len(history.All) > 0 {
		stats.SuccessRate = round2(float64(stats.TotalCompleted) / float64(len(history.All)) * 100)
	}

	return stats, nil
}
