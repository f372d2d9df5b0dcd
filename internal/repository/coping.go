package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/model"
)

var (
	ErrStrategyNotFound    = errors.New("coping strategy not found")
	ErrDuplicateStrategy   = errors.New("coping strategy already exists")
	ErrCopingUsageNotFound = errors.New("coping usage not found")
)

type CopingRepository interface {
	CreateStrategy(s *model.CopingStrategy) error
	// UpsertGlobalStrategy inserts or refreshes a catalog entry keyed by strategy type.
	UpsertGlobalStrategy(s *model.CopingStrategy) error
	// StrategyByID returns a global strategy or one owned by userID.
	StrategyByID(userID, id string) (*model.CopingStrategy, error)
	// Strategies lists global strategies plus the user's own. Empty category means all.
	Strategies(userID, category string) ([]*model.CopingStrategy, error)

	CreateUsage(u *model.CopingUsage) error
	UsageByID(userID, id string) (*model.CopingUsage, error)
	UpdateUsage(u *model.CopingUsage) error
	Usages(userID string, since time.Time) ([]*model.CopingUsage, error)
	DeleteUsage(userID, id string) error
	// TopStrategies ranks rated strategies by average effectiveness.
	TopStrategies(userID string, since time.Time, limit int) ([]*model.StrategyEffectiveness, error)
}

type copingRepository struct {
	db *sqlx.DB
}

func NewCopingRepository(db *sqlx.DB) CopingRepository {
	return &copingRepository{db: db}
}

func (r *copingRepository) CreateStrategy(s *model.CopingStrategy) error {
	query := `INSERT INTO coping_strategies (
			id, user_id, strategy_type, display_name, description, category, difficulty,
			duration_minutes, instructions, tags, triggers_helped, created_at
		) VALUES (
			:id, :user_id, :strategy_type, :display_name, :description, :category, :difficulty,
			:duration_minutes, :instructions, :tags, :triggers_helped, :created_at
		)`

	_, err := r.db.NamedExec(query, s)
	if isUniqueViolation(err) {
		return ErrDuplicateStrategy
	}
	return err
}

func (r *copingRepository) UpsertGlobalStrategy(s *model.CopingStrategy) error {
	existing := &model.CopingStrategy{}
	err := r.db.Get(existing, `SELECT * FROM coping_strategies WHERE strategy_type = $1 AND user_id IS NULL`, s.StrategyType)
	if errors.Is(err, sql.ErrNoRows) {
		return r.CreateStrategy(s)
	}
	if err != nil {
		return err
	}

	s.ID = existing.ID
	s.CreatedAt = existing.CreatedAt
	query := `UPDATE coping_strategies
	          SET display_name = :display_name, description = :description, category = :category,
	              difficulty = :difficulty, duration_minutes = :duration_minutes,
	              instructions = :instructions, tags = :tags, triggers_helped = :triggers_helped
	          WHERE id = :id`
	_, err = r.db.NamedExec(query, s)
	return err
}

func (r *copingRepository) StrategyByID(userID, id string) (*model.CopingStrategy, error) {
	s := &model.CopingStrategy{}
	query := `SELECT * FROM coping_strategies WHERE id = $1 AND (user_id IS NULL OR user_id = $2)`

	err := r.db.Get(s, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *copingRepository) Strategies(userID, category string) ([]*model.CopingStrategy, error) {
	strategies := []*model.CopingStrategy{}
	query := `SELECT * FROM coping_strategies WHERE (user_id IS NULL OR user_id = $1)`
	args := []any{userID}
	if category != "" {
		query += ` AND category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, display_name ASC`

	err := r.db.Select(&strategies, query, args...)
	if err != nil {
		return nil, err
	}
	return strategies, nil
}

func (r *copingRepository) CreateUsage(u *model.CopingUsage) error {
	query := `INSERT INTO coping_usages (
			id, user_id, strategy_id, used_at, craving_before, craving_after, trigger_context,
			environment, notes, effectiveness_rating, completed_at, created_at
		) VALUES (
			:id, :user_id, :strategy_id, :used_at, :craving_before, :craving_after, :trigger_context,
			:environment, :notes, :effectiveness_rating, :completed_at, :created_at
		)`

	_, err := r.db.NamedExec(query, u)
	return err
}

func (r *copingRepository) UsageByID(userID, id string) (*model.CopingUsage, error) {
	u := &model.CopingUsage{}
	err := r.db.Get(u, `SELECT * FROM coping_usages WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCopingUsageNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *copingRepository) UpdateUsage(u *model.CopingUsage) error {
	query := `UPDATE coping_usages
	          SET craving_after = :craving_after, notes = :notes,
	              effectiveness_rating = :effectiveness_rating, completed_at = :completed_at
	          WHERE id = :id AND user_id = :user_id`

	result, err := r.db.NamedExec(query, u)
	if err != nil {
		return err
	}
	return expectRows(result, ErrCopingUsageNotFound)
}

func (r *copingRepository) Usages(userID string, since time.Time) ([]*model.CopingUsage, error) {
	usages := []*model.CopingUsage{}
	query := `SELECT * FROM coping_usages WHERE user_id = $1 AND used_at >= $2 ORDER BY used_at DESC, created_at DESC`

	err := r.db.Select(&usages, query, userID, since)
	if err != nil {
		return nil, err
	}
	return usages, nil
}

func (r *copingRepository) DeleteUsage(userID, id string) error {
	result, err := r.db.Exec(`DELETE FROM coping_usages WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectRows(result, ErrCopingUsageNotFound)
}

func (r *copingRepository) TopStrategies(userID string, since time.Time, limit int) ([]*model.StrategyEffectiveness, error) {
	top := []*model.StrategyEffectiveness{}
	query := `SELECT s.id AS strategy_id, s.display_name AS display_name, s.category AS category,
	                 AVG(CAST(u.effectiveness_rating AS DOUBLE PRECISION)) AS average_rating, COUNT(*) AS times_used
	          FROM coping_usages u
	          JOIN coping_strategies s ON s.id = u.strategy_id
	          WHERE u.user_id = $1 AND u.used_at >= $2 AND u.effectiveness_rating IS NOT NULL
	          GROUP BY s.id, s.display_name, s.category
	          ORDER BY average_rating DESC, times_used DESC, s.display_name ASC
	          LIMIT $3`

	err := r.db.Select(&top, query, userID, since, limit)
	if err != nil {
		return nil, err
	}
	return top, nil
}
