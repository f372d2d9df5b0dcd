package service

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/soberly/recovery/internal/calendar"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/validation"
)

var (
	ErrInvalidCheckIn   = errors.New("invalid check-in")
	ErrInvalidBackfill  = errors.New("backfill requires at least one check-in")
	ErrInvalidDateRange = errors.New("invalid date range")
)

var plainText = bluemonday.StrictPolicy()

// stripTags removes markup from user text. Entities are decoded again since
// responses are JSON, not HTML.
func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}

type CheckInInput struct {
	Date             string   `json:"checkInDate,omitempty"`
	Mood             int      `json:"moodLevel"`
	EnergyLevel      int      `json:"energyLevel"`
	UrgeLevel        int      `json:"urgeLevel"`
	CravingLevel     int      `json:"cravingLevel"`
	Triggers         []string `json:"triggers"`
	CopingStrategies []string `json:"copingStrategies"`
	Relapse          bool     `json:"relapse"`
	Note             string   `json:"note"`
}

func (in *CheckInInput) validate() error {
	checks := []error{
		validation.ValidateRange("moodLevel", in.Mood, 1, 5),
		validation.ValidateRange("energyLevel", in.EnergyLevel, 0, 5),
		validation.ValidateRange("urgeLevel", in.UrgeLevel, 0, 5),
		validation.ValidateRange("cravingLevel", in.CravingLevel, 0, 5),
		validation.ValidateTags("triggers", in.Triggers),
		validation.ValidateTags("copingStrategies", in.CopingStrategies),
		validation.ValidateNote(in.Note, model.MaxCheckInNoteLength),
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCheckIn, err)
		}
	}
	return nil
}

type CheckInResult struct {
	CheckIn   *model.CheckIn    `json:"checkIn"`
	Milestone *EvaluationResult `json:"milestone"`
}

type BackfillFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type BackfillResult struct {
	Created   []*model.CheckIn  `json:"created"`
	Failed    []BackfillFailure `json:"failed"`
	Milestone *EvaluationResult `json:"milestone"`
}

func (r *BackfillResult) Partial() bool {
	return len(r.Failed) > 0
}

type CheckInService struct {
	checkInRepo      repository.CheckInRepository
	milestoneService *MilestoneService
	now              func() time.Time
}

func NewCheckInService(checkInRepo repository.CheckInRepository, milestoneService *MilestoneService) *CheckInService {
	return &CheckInService{
		checkInRepo:      checkInRepo,
		milestoneService: milestoneService,
		now:              time.Now,
	}
}

// CreateToday records today's check-in and evaluates the milestone window.
func (s *CheckInService) CreateToday(userID string, in CheckInInput) (*CheckInResult, error) {
	err := in.validate()
	if err != nil {
		return nil, err
	}

	checkIn := s.build(userID, calendar.Today(s.now()), in, false)
	err = s.checkInRepo.Create(checkIn)
	if err != nil {
		return nil, err
	}

	return &CheckInResult{
		CheckIn:   checkIn,
		Milestone: s.evaluate(userID),
	}, nil
}

// Backfill records up to three missed days. Each entry succeeds or fails on
// its own; the milestone window is evaluated once afterwards.
func (s *CheckInService) Backfill(userID string, entries []CheckInInput) (*BackfillResult, error) {
	if len(entries) == 0 {
		return nil, ErrInvalidBackfill
	}

	today := calendar.Today(s.now())
	result := &BackfillResult{
		Created: []*model.CheckIn{},
		Failed:  []BackfillFailure{},
	}

	for _, in := range entries {
		day, err := calendar.Parse(in.Date)
		if err != nil {
			result.Failed = append(result.Failed, BackfillFailure{Date: in.Date, Error: "invalid date"})
			continue
		}
		err = validation.ValidateBackfillDate(day, today, model.MaxBackfillDays)
		if err == nil {
			err = in.validate()
		}
		if err != nil {
			result.Failed = append(result.Failed, BackfillFailure{Date: calendar.Format(day), Error: err.Error()})
			continue
		}

		checkIn := s.build(userID, day, in, true)
		err = s.checkInRepo.Create(checkIn)
		if errors.Is(err, repository.ErrDuplicateCheckIn) {
			result.Failed = append(result.Failed, BackfillFailure{Date: calendar.Format(day), Error: err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to backfill check-in: %w", err)
		}
		result.Created = append(result.Created, checkIn)
	}

	if len(result.Created) > 0 {
		result.Milestone = s.evaluate(userID)
	}

	return result, nil
}

// List returns check-ins in [from, to], oldest first.
func (s *CheckInService) List(userID string, from, to time.Time) ([]*model.CheckIn, error) {
	from, to = calendar.NormalizeDay(from), calendar.NormalizeDay(to)
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	return s.checkInRepo.InRange(userID, from, to)
}

func (s *CheckInService) build(userID string, day time.Time, in CheckInInput, backfill bool) *model.CheckIn {
	return &model.CheckIn{
		ID:               uuid.New().String(),
		UserID:           userID,
		CheckInDate:      day,
		Mood:             in.Mood,
		EnergyLevel:      in.EnergyLevel,
		UrgeLevel:        in.UrgeLevel,
		CravingLevel:     in.CravingLevel,
		Triggers:         cleanTags(in.Triggers),
		CopingStrategies: cleanTags(in.CopingStrategies),
		Relapse:          in.Relapse,
		Note:             stripTags(in.Note),
		IsBackfill:       backfill,
		CreatedAt:        s.now().UTC(),
	}
}

// evaluate runs after the check-in is stored. A failure here is logged and
// does not undo the check-in.
func (s *CheckInService) evaluate(userID string) *EvaluationResult {
	result, err := s.milestoneService.Evaluate(userID)
	if err != nil {
		slog.Error("milestone evaluation failed after check-in", "error", err, "user_id", userID)
		return nil
	}
	return result
}

func cleanTags(tags []string) model.StringList {
	out := make(model.StringList, 0, len(tags))
	for _, tag := range tags {
		tag = stripTags(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
