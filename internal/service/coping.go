package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/markdown"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/validation"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidStrategy = errors.New("invalid coping strategy")
	ErrInvalidUsage    = errors.New("invalid coping usage")
)

const maxUsageNoteLength = 1000

// catalogEntry is the frontmatter of a catalog markdown file. The body holds
// the instructions.
type catalogEntry struct {
	Type        string   `yaml:"type"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Difficulty  string   `yaml:"difficulty"`
	Minutes     int      `yaml:"minutes"`
	Tags        []string `yaml:"tags"`
	Triggers    []string `yaml:"triggers"`
}

type StrategyInput struct {
	StrategyType    string   `json:"strategyType"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Difficulty      string   `json:"difficulty"`
	DurationMinutes int      `json:"durationMinutes"`
	Instructions    string   `json:"instructions"` // markdown
	Tags            []string `json:"tags"`
	TriggersHelped  []string `json:"triggersHelped"`
}

func (in *StrategyInput) validate() error {
	in.StrategyType = strings.TrimSpace(in.StrategyType)
	in.DisplayName = stripTags(in.DisplayName)
	in.Description = stripTags(in.Description)
	if in.Difficulty == "" {
		in.Difficulty = model.StrategyDifficultyBeginner
	}

	checks := []error{
		validation.ValidateOneOf("category", in.Category, model.StrategyCategories),
		validation.ValidateOneOf("difficulty", in.Difficulty, model.StrategyDifficulties),
		validation.ValidateRange("durationMinutes", in.DurationMinutes, 0, 240),
		validation.ValidateTags("tags", in.Tags),
		validation.ValidateTags("triggersHelped", in.TriggersHelped),
	}
	if in.StrategyType == "" {
		checks = append(checks, errors.New("strategyType is required"))
	}
	if in.DisplayName == "" {
		checks = append(checks, errors.New("displayName is required"))
	}
	if strings.TrimSpace(in.Instructions) == "" {
		checks = append(checks, errors.New("instructions are required"))
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
		}
	}
	return nil
}

type UsageInput struct {
	StrategyID             string `json:"strategyId"`
	UsedAt                 string `json:"usedAt,omitempty"`
	CravingIntensityBefore int    `json:"cravingIntensityBefore"`
	TriggerContext         string `json:"triggerContext"`
	Environment            string `json:"environment"`
	Notes                  string `json:"notes"`
	EffectivenessRating    *int   `json:"effectivenessRating"`
}

type CompleteUsageInput struct {
	CravingIntensityAfter int    `json:"cravingIntensityAfter"`
	Notes                 string `json:"notes"`
	EffectivenessRating   int    `json:"effectivenessRating"`
}

type CopingService struct {
	repo   repository.CopingRepository
	parser *markdown.Parser
	now    func() time.Time
}

func NewCopingService(repo repository.CopingRepository) *CopingService {
	return &CopingService{
		repo:   repo,
		parser: markdown.NewParser(),
		now:    time.Now,
	}
}

// SeedCatalog upserts every markdown file at the root of catalog as a global
// strategy and returns how many were written.
func (s *CopingService) SeedCatalog(catalog fs.FS) (int, error) {
	files, err := fs.Glob(catalog, "*.md")
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, file := range files {
		source, err := fs.ReadFile(catalog, file)
		if err != nil {
			return seeded, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var entry catalogEntry
		instructions, err := s.parser.Render(source, &entry)
		if err != nil {
			return seeded, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		if entry.Type == "" {
			entry.Type = strings.TrimSuffix(path.Base(file), ".md")
		}

		in := StrategyInput{
			StrategyType:    entry.Type,
			DisplayName:     entry.Name,
			Description:     entry.Description,
			Category:        entry.Category,
			Difficulty:      entry.Difficulty,
			DurationMinutes: entry.Minutes,
			Instructions:    instructions,
			Tags:            entry.Tags,
			TriggersHelped:  entry.Triggers,
		}
		err = in.validate()
		if err != nil {
			return seeded, fmt.Errorf("%s: %w", file, err)
		}

		strategy := newStrategy(nil, in, s.now())
		strategy.Instructions = instructions
		err = s.repo.UpsertGlobalStrategy(strategy)
		if err != nil {
			return seeded, fmt.Errorf("failed to save %s: %w", entry.Type, err)
		}
		seeded++
	}

	slog.Info("coping catalog seeded", "strategies", seeded)
	return seeded, nil
}

// CreateStrategy adds a private strategy for userID.
func (s *CopingService) CreateStrategy(userID string, in StrategyInput) (*model.CopingStrategy, error) {
	err := in.validate()
	if err != nil {
		return nil, err
	}

	instructions, err := s.parser.Render([]byte(in.Instructions), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render instructions: %w", err)
	}

	strategy := newStrategy(&userID, in, s.now())
	strategy.Instructions = instructions
	err = s.repo.CreateStrategy(strategy)
	if err != nil {
		return nil, err
	}

	labelCategories(strategy)
	return strategy, nil
}

// Strategies lists the catalog plus the user's own strategies.
func (s *CopingService) Strategies(userID, category string) ([]*model.CopingStrategy, error) {
	if category != "" {
		err := validation.ValidateOneOf("category", category, model.StrategyCategories)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
		}
	}

	strategies, err := s.repo.Strategies(userID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	labelCategories(strategies...)
	return strategies, nil
}

func (s *CopingService) Strategy(userID, id string) (*model.CopingStrategy, error) {
	strategy, err := s.repo.StrategyByID(userID, id)
	if err != nil {
		return nil, err
	}
	labelCategories(strategy)
	return strategy, nil
}

// LogUsage records that the user reached for a strategy. The strategy must be
// visible to the user.
func (s *CopingService) LogUsage(userID string, in UsageInput) (*model.CopingUsage, error) {
	usedAt := s.now().UTC()
	if in.UsedAt != "" {
		t, err := time.Parse(time.RFC3339, in.UsedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: usedAt must be an RFC 3339 timestamp", ErrInvalidUsage)
		}
		usedAt = t.UTC()
	}

	in.Notes = stripTags(in.Notes)
	checks := []error{
		validation.ValidateRange("cravingIntensityBefore", in.CravingIntensityBefore, 1, 5),
		validation.ValidateOneOf("triggerContext", in.TriggerContext, model.TriggerContexts),
		validation.ValidateOneOf("environment", in.Environment, model.Environments),
		validation.ValidateNote(in.Notes, maxUsageNoteLength),
	}
	if in.EffectivenessRating != nil {
		checks = append(checks, validation.ValidateRange("effectivenessRating", *in.EffectivenessRating, 1, 5))
	}
	if usedAt.After(s.now()) {
		checks = append(checks, errors.New("usedAt must not be in the future"))
	}
	for _, err := range checks {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUsage, err)
		}
	}

	_, err := s.repo.StrategyByID(userID, in.StrategyID)
	if err != nil {
		return nil, err
	}

	usage := &model.CopingUsage{
		ID:                     uuid.New().String(),
		UserID:                 userID,
		StrategyID:             in.StrategyID,
		UsedAt:                 usedAt,
		CravingIntensityBefore: in.CravingIntensityBefore,
		TriggerContext:         in.TriggerContext,
		Environment:            in.Environment,
		Notes:                  in.Notes,
		EffectivenessRating:    in.EffectivenessRating,
		CreatedAt:              s.now().UTC(),
	}
	err = s.repo.CreateUsage(usage)
	if err != nil {
		return nil, fmt.Errorf("failed to log usage: %w", err)
	}
	return usage, nil
}

// CompleteUsage stores the outcome of a usage. Completing again overwrites
// the outcome but keeps the first completion time.
func (s *CopingService) CompleteUsage(userID, id string, in CompleteUsageInput) (*model.CopingUsage, error) {
	in.Notes = stripTags(in.Notes)
	checks := []error{
		validation.ValidateRange("cravingIntensityAfter", in.CravingIntensityAfter, 1, 5),
		validation.ValidateRange("effectivenessRating", in.EffectivenessRating, 1, 5),
		validation.ValidateNote(in.Notes, maxUsageNoteLength),
	}
	for _, err := range checks {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUsage, err)
		}
	}

	usage, err := s.repo.UsageByID(userID, id)
	if err != nil {
		return nil, err
	}

	usage.CravingIntensityAfter = &in.CravingIntensityAfter
	usage.EffectivenessRating = &in.EffectivenessRating
	if in.Notes != "" {
		usage.Notes = in.Notes
	}
	if usage.CompletedAt == nil {
		now := s.now().UTC()
		usage.CompletedAt = &now
	}

	err = s.repo.UpdateUsage(usage)
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *CopingService) Usage(userID, id string) (*model.CopingUsage, error) {
	return s.repo.UsageByID(userID, id)
}

// Usages lists usage since the given time, newest first. A zero since lists everything.
func (s *CopingService) Usages(userID string, since time.Time) ([]*model.CopingUsage, error) {
	usages, err := s.repo.Usages(userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return usages, nil
}

func (s *CopingService) DeleteUsage(userID, id string) error {
	return s.repo.DeleteUsage(userID, id)
}

func newStrategy(userID *string, in StrategyInput, now time.Time) *model.CopingStrategy {
	return &model.CopingStrategy{
		ID:              uuid.New().String(),
		UserID:          userID,
		StrategyType:    in.StrategyType,
		DisplayName:     in.DisplayName,
		Description:     in.Description,
		Category:        in.Category,
		Difficulty:      in.Difficulty,
		DurationMinutes: in.DurationMinutes,
		Tags:            in.Tags,
		TriggersHelped:  in.TriggersHelped,
		CreatedAt:       now.UTC(),
	}
}

func labelCategories(strategies ...*model.CopingStrategy) {
	title := cases.Title(language.English)
	for _, s := range strategies {
		s.CategoryLabel = title.String(s.Category)
	}
}
