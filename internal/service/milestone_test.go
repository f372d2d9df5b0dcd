package service

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
)

func TestMeasureThreshold(t *testing.T) {
	pass := measure(make([]*model.CheckIn, 7), 10)
	if pass.completion != 70 || !model.Passes(pass.completion) {
		t.Errorf("7/10 should be 70%% and pass, got %v", pass.completion)
	}
	fail := measure(make([]*model.CheckIn, 6), 10)
	if fail.completion != 60 || model.Passes(fail.completion) {
		t.Errorf("6/10 should be 60%% and fail, got %v", fail.completion)
	}
	empty := measure(nil, 0)
	if empty.completion != 0 || empty.relapse != 0 {
		t.Errorf("empty window should measure zero, got %+v", empty)
	}
}

func TestEvaluateNotYetDue(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1).Add(17 * time.Hour))
	f.checkInDays(user.ID, d(2024, 1, 1), 0, 1, 2)

	f.today = d(2024, 1, 6)
	for i := 0; i < 2; i++ {
		res, err := f.milestone.Evaluate(user.ID)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.NotYetDue || res.Message != msgNotYetDue || res.MilestoneChecked != nil {
			t.Errorf("call %d: unexpected result %+v", i, res)
		}
	}
	if n := f.milestoneCount(user.ID); n != 0 {
		t.Errorf("not-yet-due evaluation wrote %d rows", n)
	}
}

func TestEvaluateCompletesWithMedal(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start.Add(20 * time.Hour))
	f.checkInDays(user.ID, start, 0, 1, 2, 3, 4)
	f.checkIn(user.ID, start.AddDate(0, 0, 6), true)
	// outside the window
	f.checkIn(user.ID, start.AddDate(0, 0, 7), true)

	f.today = d(2024, 1, 7)
	res, err := f.milestone.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	m := res.MilestoneChecked
	if m == nil || !m.IsCompleted() {
		t.Fatalf("expected completed milestone, got %+v", res)
	}
	if m.CompletionPercentage != 85.71 || m.RelapsePercentage != 16.67 {
		t.Errorf("percentages = %v/%v, want 85.71/16.67", m.CompletionPercentage, m.RelapsePercentage)
	}
	if m.TotalCheckIns != 6 || m.TotalRelapses != 1 || m.AttemptNumber != 1 {
		t.Errorf("unexpected counts: %+v", m)
	}
	if m.Medal == nil || *m.Medal != model.MedalGold {
		t.Errorf("medal = %v, want gold", m.Medal)
	}
	if m.AchievedDate == nil || !m.AchievedDate.Equal(f.today) {
		t.Errorf("achieved date = %v", m.AchievedDate)
	}
	if res.Message != "🎉 Congratulations! 7-day milestone completed with gold medal!" {
		t.Errorf("message = %q", res.Message)
	}
	if res.ShouldResetMilestone || res.NewMilestoneCreated != nil {
		t.Errorf("completion must not reset: %+v", res)
	}
	if len(f.notified) != 1 {
		t.Errorf("notifier called %d times, want 1", len(f.notified))
	}

	// next rung starts the day after the completed window
	f.today = d(2024, 1, 10)
	progress, err := f.milestone.CurrentProgress(user.ID)
	if err != nil {
		t.Fatalf("CurrentProgress failed: %v", err)
	}
	if progress.CurrentMilestone != 14 || !progress.StartDate.Equal(d(2024, 1, 8)) || !progress.EndDate.Equal(d(2024, 1, 21)) {
		t.Errorf("unexpected next window: %+v", progress)
	}
	if progress.PreviousCompletedMilestone != 7 {
		t.Errorf("previous completed = %v, want 7", progress.PreviousCompletedMilestone)
	}

	res, err = f.milestone.Evaluate(user.ID)
	if err != nil || !res.NotYetDue {
		t.Errorf("14-day window should not be due: %+v %v", res, err)
	}
}

func TestEvaluateFailureRestartsSameWindow(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start)
	f.checkInDays(user.ID, start, 0, 2, 4)

	f.today = d(2024, 1, 8)
	res, err := f.milestone.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if res.MilestoneChecked == nil || !res.MilestoneChecked.IsFailed() {
		t.Fatalf("expected failed milestone, got %+v", res)
	}
	if res.MilestoneChecked.Medal != nil || res.MilestoneChecked.AchievedDate != nil {
		t.Error("failed milestone must not carry a medal")
	}

	next := res.NewMilestoneCreated
	if next == nil || !next.IsPending() {
		t.Fatalf("expected new pending attempt, got %+v", next)
	}
	if !next.StartDate.Equal(start) || !next.EndDate.Equal(d(2024, 1, 7)) {
		t.Errorf("retry window = %s..%s, want 2024-01-01..2024-01-07", calendar.Format(next.StartDate), calendar.Format(next.EndDate))
	}
	if next.AttemptNumber != 2 || next.CompletionPercentage != 0 || next.TotalCheckIns != 0 {
		t.Errorf("unexpected retry row: %+v", next)
	}

	if !res.ShouldResetMilestone || res.ResetInfo == nil {
		t.Fatalf("expected reset info, got %+v", res)
	}
	if res.ResetInfo.FailedMilestone != 7 || res.ResetInfo.RestartFromDay != 1 {
		t.Errorf("reset info = %+v", res.ResetInfo)
	}
	want := "⚠️ 7-day milestone failed (42.9% completion). Starting fresh attempt #2 from day 1!"
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}

	pending, err := f.milestones.Pending(user.ID, 7)
	if err != nil || pending.ID != next.ID {
		t.Errorf("stored pending row = %+v, %v", pending, err)
	}
}

func TestEvaluateFailureReportsPreviousRung(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	f.completed(user.ID, 7, d(2024, 1, 1), model.MedalGold)

	f.today = d(2024, 1, 21)
	res, err := f.milestone.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.ResetInfo == nil || res.ResetInfo.FailedMilestone != 14 || res.ResetInfo.RestartFromDay != 8 {
		t.Fatalf("unexpected reset info: %+v", res.ResetInfo)
	}
	if !res.ResetInfo.NewStartDate.Equal(d(2024, 1, 8)) || !res.ResetInfo.NewEndDate.Equal(d(2024, 1, 21)) {
		t.Errorf("restart window = %+v", res.ResetInfo)
	}
	if res.Message != "⚠️ 14-day milestone failed (0.0% completion). Starting fresh attempt #2 from day 8!" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestEvaluateLadderExhausted(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2020, 1, 1))
	start := d(2020, 1, 1)
	for _, days := range model.Rungs() {
		m := f.completed(user.ID, days, start, model.MedalSilver)
		start = calendar.AddDays(m.EndDate, 1)
	}

	f.today = d(2025, 1, 1)
	res, err := f.milestone.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.LadderExhausted || res.Message != msgAllMilestonesCompleted || res.MilestoneChecked != nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := f.milestoneCount(user.ID); n != 7 {
		t.Errorf("exhausted ladder wrote rows: %d", n)
	}

	progress, err := f.milestone.CurrentProgress(user.ID)
	if err != nil {
		t.Fatalf("CurrentProgress failed: %v", err)
	}
	if !progress.AllCompleted || len(progress.CompletedMilestones) != 7 {
		t.Errorf("unexpected progress: %+v", progress)
	}
}

func TestEvaluateUnknownUser(t *testing.T) {
	f := newFixture(t)
	f.today = d(2024, 1, 1)
	if _, err := f.milestone.Evaluate("nobody"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("Evaluate: expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.milestone.CurrentProgress("nobody"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("CurrentProgress: expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.milestone.History("nobody"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("History: expected ErrUserNotFound, got %v", err)
	}
}

func TestEvaluateConcurrentCallsResolveOnce(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start)
	f.checkInDays(user.ID, start, 0, 1, 2, 3, 4, 5, 6)
	f.today = d(2024, 1, 7)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.milestone.Evaluate(user.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	all, _ := f.milestones.All(user.ID)
	if len(all) != 1 || !all[0].IsCompleted() {
		t.Errorf("expected exactly one completed row, got %d", len(all))
	}
}

// racingMilestones lets a competing writer open the attempt first.
type racingMilestones struct {
	repository.MilestoneRepository
	raced bool
}

func (r *racingMilestones) Create(m *model.Milestone) error {
	if !r.raced {
		r.raced = true
		winner := *m
		winner.ID = m.ID + "-winner"
		if err := r.MilestoneRepository.Create(&winner); err != nil {
			return err
		}
	}
	return r.MilestoneRepository.Create(m)
}

func TestEvaluateRetriesAfterDuplicatePending(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start)
	f.checkInDays(user.ID, start, 0, 1, 2, 3, 4, 5, 6)
	f.today = d(2024, 1, 7)

	race := &racingMilestones{MilestoneRepository: f.milestones}
	svc := NewMilestoneService(f.users, f.checkIns, race, nil, nil)
	svc.now = f.now

	res, err := svc.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.MilestoneChecked == nil || !strings.HasSuffix(res.MilestoneChecked.ID, "-winner") {
		t.Fatalf("unexpected result: %+v", res)
	}
	all, _ := f.milestones.All(user.ID)
	if len(all) != 1 || !all[0].IsCompleted() || all[0].ID != res.MilestoneChecked.ID {
		t.Errorf("the competing writer's row should be resolved, got %d rows", len(all))
	}
}

func TestCurrentProgressMidWindow(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start.Add(3 * time.Hour))
	f.checkInDays(user.ID, start, 0, 1)
	f.checkIn(user.ID, start.AddDate(0, 0, 2), true)

	f.today = d(2024, 1, 4)
	p, err := f.milestone.CurrentProgress(user.ID)
	if err != nil {
		t.Fatalf("CurrentProgress failed: %v", err)
	}

	if p.CurrentMilestone != 7 || p.TotalDays != 7 || p.AttemptNumber != 1 {
		t.Errorf("unexpected window: %+v", p)
	}
	if p.DaysElapsed != 4 || p.DaysLeft != 4 || p.DaysRemaining != 3 {
		t.Errorf("days elapsed/left/remaining = %d/%d/%d, want 4/4/3", p.DaysElapsed, p.DaysLeft, p.DaysRemaining)
	}
	if p.CompletionPercentage != 75 || p.RelapsePercentage != 33.33 {
		t.Errorf("percentages = %v/%v, want 75/33.33", p.CompletionPercentage, p.RelapsePercentage)
	}
	if !p.IsOnTrack || p.ProjectedMedal != model.MedalSilver {
		t.Errorf("on track/medal = %v/%s", p.IsOnTrack, p.ProjectedMedal)
	}
	if p.PreviousCompletedMilestone != 0 {
		t.Errorf("previous completed = %d, want 0 before the first completion", p.PreviousCompletedMilestone)
	}
	if n := f.milestoneCount(user.ID); n != 0 {
		t.Errorf("progress must not write, found %d rows", n)
	}
}

func TestCurrentProgressAfterWindowEnd(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start)
	f.checkInDays(user.ID, start, 0, 1, 2, 3, 4, 5, 6, 7, 8)

	f.today = d(2024, 1, 12)
	p, err := f.milestone.CurrentProgress(user.ID)
	if err != nil {
		t.Fatalf("CurrentProgress failed: %v", err)
	}
	if p.DaysElapsed != 7 || p.DaysLeft != 0 || p.DaysRemaining != 0 {
		t.Errorf("days elapsed/left/remaining = %d/%d/%d", p.DaysElapsed, p.DaysLeft, p.DaysRemaining)
	}
	if p.TotalCheckIns != 7 || p.CompletionPercentage != 100 {
		t.Errorf("check-ins beyond the window end must be ignored: %+v", p)
	}
}

func TestCurrentProgressUsesStoredPendingWindow(t *testing.T) {
	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	stored := newAttempt(user.ID, 7, d(2024, 1, 3), 4, d(2024, 1, 3))
	if err := f.milestones.Create(stored); err != nil {
		t.Fatalf("create pending failed: %v", err)
	}

	f.today = d(2024, 1, 4)
	p, err := f.milestone.CurrentProgress(user.ID)
	if err != nil {
		t.Fatalf("CurrentProgress failed: %v", err)
	}
	if !p.StartDate.Equal(d(2024, 1, 3)) || !p.EndDate.Equal(d(2024, 1, 9)) {
		t.Errorf("stored dates should win, got %s..%s", calendar.Format(p.StartDate), calendar.Format(p.EndDate))
	}
	if p.AttemptNumber != 4 || p.DaysElapsed != 2 {
		t.Errorf("attempt/elapsed = %d/%d, want 4/2", p.AttemptNumber, p.DaysElapsed)
	}
}

func TestEvaluateGradesStoredPendingWindow(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newFixture(t)
	user := f.user(d(2024, 1, 1))
	stored := newAttempt(user.ID, 7, d(2024, 1, 3), 1, d(2024, 1, 3))
	if err := f.milestones.Create(stored); err != nil {
		t.Fatalf("create pending failed: %v", err)
	}
	// 01-01 lies inside the computed window only
	f.checkInDays(user.ID, d(2024, 1, 1), 0, 2, 4)

	f.today = d(2024, 1, 10)
	res, err := f.milestone.Evaluate(user.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	checked := res.MilestoneChecked
	if checked == nil || checked.ID != stored.ID || !checked.IsFailed() {
		t.Fatalf("expected stored row to fail, got %+v", checked)
	}
	if checked.TotalCheckIns != 2 {
		t.Errorf("graded %d check-ins, want 2 from the stored window", checked.TotalCheckIns)
	}

	next := res.NewMilestoneCreated
	if next == nil || !next.StartDate.Equal(d(2024, 1, 3)) || !next.EndDate.Equal(d(2024, 1, 9)) {
		t.Errorf("retry should reuse the stored window, got %+v", next)
	}
	if !strings.Contains(logs.String(), "milestone window mismatch") {
		t.Errorf("window mismatch not logged: %s", logs.String())
	}
}

func TestHistoryGroupsAttempts(t *testing.T) {
	f := newFixture(t)
	start := d(2024, 1, 1)
	user := f.user(start)
	f.checkInDays(user.ID, start, 0)

	// fail once, then complete on the retry
	f.today = d(2024, 1, 7)
	if _, err := f.milestone.Evaluate(user.ID); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	f.checkInDays(user.ID, start, 1, 2, 3, 4, 5, 6)
	f.today = d(2024, 1, 8)
	if _, err := f.milestone.Evaluate(user.ID); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	// opens the 14-day attempt lazily on its due date and fails it
	f.today = d(2024, 1, 21)
	if _, err := f.milestone.Evaluate(user.ID); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	h, err := f.milestone.History(user.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(h.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(h.Groups))
	}

	seven, fourteen := h.Groups[0], h.Groups[1]
	if seven.MilestoneDays != 7 || seven.TotalAttempts != 2 || !seven.Completed || seven.Failed != 1 {
		t.Errorf("7-day group = %+v", seven)
	}
	if fourteen.MilestoneDays != 14 || fourteen.TotalAttempts != 2 || fourteen.Completed || fourteen.Failed != 1 {
		t.Errorf("14-day group = %+v", fourteen)
	}
	if h.Summary.TotalMilestones != 7 || h.Summary.CompletedMilestones != 1 || h.Summary.InProgress != 1 {
		t.Errorf("summary = %+v", h.Summary)
	}
	if h.Summary.Medals.Gold != 1 {
		t.Errorf("medals = %+v", h.Summary.Medals)
	}

	// flattened groups equal the raw list
	var flat []*model.Milestone
	for _, g := range h.Groups {
		flat = append(flat, g.Attempts...)
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].MilestoneDays < flat[j].MilestoneDays })
	if len(flat) != len(h.All) {
		t.Fatalf("flattened %d attempts, raw %d", len(flat), len(h.All))
	}
	for i := range flat {
		if flat[i].ID != h.All[i].ID {
			t.Errorf("attempt %d differs after flattening", i)
		}
	}

	stats, err := f.milestone.Stats(user.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalCompleted != 1 || stats.TotalFailed != 2 || stats.HighestMilestone != 7 {
		t.Errorf("stats totals = %+v", stats)
	}
	if stats.SuccessRate != 25 || stats.AverageCompletion != 100 || stats.Medals.Gold != 1 {
		t.Errorf("stats rates = %v/%v", stats.SuccessRate, stats.AverageCompletion)
	}
	if stats.Progress == nil || stats.Progress.CurrentMilestone != 14 || stats.Progress.AttemptNumber != 2 {
		t.Errorf("stats progress = %+v", stats.Progress)
	}
}
