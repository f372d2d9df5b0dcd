package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/db/dbtest"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
)

// fixture wires real repositories over a throwaway SQLite database.
type fixture struct {
	t          *testing.T
	db         *sqlx.DB
	today      time.Time
	users      repository.UserRepository
	checkIns   repository.CheckInRepository
	milestones repository.MilestoneRepository
	coping     repository.CopingRepository
	subs       repository.SubscriptionRepository
	files      repository.FileRepository
	tokens     repository.TokenRepository
	milestone  *MilestoneService
	notified   []*model.Milestone
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		t:          t,
		db:         conn,
		users:      repository.NewUserRepository(conn),
		checkIns:   repository.NewCheckInRepository(conn),
		milestones: repository.NewMilestoneRepository(conn),
		coping:     repository.NewCopingRepository(conn),
		subs:       repository.NewSubscriptionRepository(conn),
		files:      repository.NewFileRepository(conn),
		tokens:     repository.NewTokenRepository(conn),
	}
	f.milestone = NewMilestoneService(f.users, f.checkIns, f.milestones, NewLocalLocker(), f)
	f.milestone.now = f.now
	return f
}

func (f *fixture) now() time.Time {
	return f.today.Add(14 * time.Hour)
}

func (f *fixture) SendMilestoneAchieved(user *model.User, m *model.Milestone) error {
	f.notified = append(f.notified, m)
	return nil
}

func (f *fixture) user(createdAt time.Time) *model.User {
	f.t.Helper()
	u := &model.User{
		ID:        uuid.New().String(),
		Username:  "sam",
		Email:     uuid.New().String() + "@example.com",
		CreatedAt: createdAt,
	}
	if err := f.users.Create(u); err != nil {
		f.t.Fatalf("create user failed: %v", err)
	}
	return u
}

func (f *fixture) checkIn(userID string, day time.Time, relapse bool) {
	f.t.Helper()
	c := &model.CheckIn{
		ID:          uuid.New().String(),
		UserID:      userID,
		CheckInDate: day,
		Mood:        3,
		Relapse:     relapse,
		CreatedAt:   day.Add(8 * time.Hour),
	}
	if err := f.checkIns.Create(c); err != nil {
		f.t.Fatalf("create check-in failed: %v", err)
	}
}

// checkInDays adds non-relapse check-ins on start+offset for each offset.
func (f *fixture) checkInDays(userID string, start time.Time, offsets ...int) {
	f.t.Helper()
	for _, off := range offsets {
		f.checkIn(userID, start.AddDate(0, 0, off), false)
	}
}

func (f *fixture) completed(userID string, days int, start time.Time, medal string) *model.Milestone {
	f.t.Helper()
	m := newAttempt(userID, days, start, 1, start)
	m.Status = model.MilestoneStatusCompleted
	m.Medal = &medal
	end := m.EndDate
	m.AchievedDate = &end
	m.CompletionPercentage = 100
	if err := f.milestones.Create(m); err != nil {
		f.t.Fatalf("create milestone failed: %v", err)
	}
	return m
}

func (f *fixture) milestoneCount(userID string) int {
	f.t.Helper()
	all, err := f.milestones.All(userID)
	if err != nil {
		f.t.Fatalf("load milestones failed: %v", err)
	}
	return len(all)
}
