package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/model"
)

var (
	ErrCheckInNotFound  = errors.New("check-in not found")
	ErrDuplicateCheckIn = errors.New("check-in already exists for this day")
)

// CheckInRepository stores one check-in per user per UTC day.
// Dates passed in must already be normalized.
type CheckInRepository interface {
	Create(c *model.CheckIn) error
	ByDate(userID string, day time.Time) (*model.CheckIn, error)
	// InRange returns check-ins with from <= day <= to, oldest first.
	InRange(userID string, from, to time.Time) ([]*model.CheckIn, error)
	// All returns every check-in for the user, newest first.
	All(userID string) ([]*model.CheckIn, error)
	Count(userID string) (int, error)
}

type checkInRepository struct {
	db *sqlx.DB
}

func NewCheckInRepository(db *sqlx.DB) CheckInRepository {
	return &checkInRepository{db: db}
}

func (r *checkInRepository) Create(c *model.CheckIn) error {
	query := `INSERT INTO check_ins (
			id, user_id, checkin_date, mood, energy_level, urge_level, craving_level,
			triggers, coping_strategies, relapse, note, is_backfill, created_at
		) VALUES (
			:id, :user_id, :checkin_date, :mood, :energy_level, :urge_level, :craving_level,
			:triggers, :coping_strategies, :relapse, :note, :is_backfill, :created_at
		)`

	_, err := r.db.NamedExec(query, c)
	if isUniqueViolation(err) {
		return ErrDuplicateCheckIn
	}
	return err
}

func (r *checkInRepository) ByDate(userID string, day time.Time) (*model.CheckIn, error) {
	c := &model.CheckIn{}
	query := `SELECT * FROM check_ins WHERE user_id = $1 AND checkin_date = $2`

	err := r.db.Get(c, query, userID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckInNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *checkInRepository) InRange(userID string, from, to time.Time) ([]*model.CheckIn, error) {
	checkIns := []*model.CheckIn{}
	query := `SELECT * FROM check_ins
	          WHERE user_id = $1 AND checkin_date >= $2 AND checkin_date <= $3
	          ORDER BY checkin_date ASC`

	err := r.db.Select(&checkIns, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	return checkIns, nil
}

func (r *checkInRepository) All(userID string) ([]*model.CheckIn, error) {
	checkIns := []*model.CheckIn{}
	query := `SELECT * FROM check_ins WHERE user_id = $1 ORDER BY checkin_date DESC`

	err := r.db.Select(&checkIns, query, userID)
	if err != nil {
		return nil, err
	}
	return checkIns, nil
}

func (r *checkInRepository) Count(userID string) (int, error) {
	var count int
	err := r.db.Get(&count, `SELECT COUNT(*) FROM check_ins WHERE user_id = $1`, userID)
	return count, err
}
