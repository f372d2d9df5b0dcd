package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/model"
)

var (
	ErrMilestoneNotFound = errors.New("milestone not found")
	// ErrDuplicatePendingMilestone means another writer already opened an
	// attempt for the same user and rung.
	ErrDuplicatePendingMilestone = errors.New("pending milestone already exists")
)

type MilestoneRepository interface {
	Create(m *model.Milestone) error
	Update(m *model.Milestone) error
	// FailAndRestart marks failed as failed and inserts next in one transaction.
	FailAndRestart(failed, next *model.Milestone) error
	// Completed returns completed milestones, longest rung first.
	Completed(userID string) ([]*model.Milestone, error)
	// Pending returns the newest pending attempt for a rung.
	Pending(userID string, days int) (*model.Milestone, error)
	CountAttempts(userID string, days int) (int, error)
	// All returns every attempt ordered by rung, then creation.
	All(userID string) ([]*model.Milestone, error)
}

type milestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) MilestoneRepository {
	return &milestoneRepository{db: db}
}

const insertMilestone = `INSERT INTO milestones (
		id, user_id, milestone_days, status, start_date, end_date,
		completion_percentage, relapse_percentage, total_check_ins, total_relapses,
		medal, achieved_date, attempt_number, created_at, updated_at
	) VALUES (
		:id, :user_id, :milestone_days, :status, :start_date, :end_date,
		:completion_percentage, :relapse_percentage, :total_check_ins, :total_relapses,
		:medal, :achieved_date, :attempt_number, :created_at, :updated_at
	)`

const updateMilestone = `UPDATE milestones
	SET status = :status,
	    completion_percentage = :completion_percentage,
	    relapse_percentage = :relapse_percentage,
	    total_check_ins = :total_check_ins,
	    total_relapses = :total_relapses,
	    medal = :medal,
	    achieved_date = :achieved_date,
	    updated_at = :updated_at
	WHERE id = :id AND user_id = :user_id AND status = 'pending'`

func (r *milestoneRepository) Create(m *model.Milestone) error {
	_, err := r.db.NamedExec(insertMilestone, m)
	if isUniqueViolation(err) {
		return ErrDuplicatePendingMilestone
	}
	return err
}

// Update only touches pending rows; resolved attempts are immutable.
func (r *milestoneRepository) Update(m *model.Milestone) error {
	result, err := r.db.NamedExec(updateMilestone, m)
	if err != nil {
		return err
	}
	return expectRows(result, ErrMilestoneNotFound)
}

func (r *milestoneRepository) FailAndRestart(failed, next *model.Milestone) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.NamedExec(updateMilestone, failed)
	if err != nil {
		return err
	}
	err = expectRows(result, ErrMilestoneNotFound)
	if err != nil {
		return err
	}

	_, err = tx.NamedExec(insertMilestone, next)
	if isUniqueViolation(err) {
		return ErrDuplicatePendingMilestone
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *milestoneRepository) Completed(userID string) ([]*model.Milestone, error) {
	milestones := []*model.Milestone{}
	query := `SELECT * FROM milestones WHERE user_id = $1 AND status = $2
	          ORDER BY milestone_days DESC, created_at DESC`

	err := r.db.Select(&milestones, query, userID, model.MilestoneStatusCompleted)
	if err != nil {
		return nil, err
	}
	return milestones, nil
}

func (r *milestoneRepository) Pending(userID string, days int) (*model.Milestone, error) {
	m := &model.Milestone{}
	query := `SELECT * FROM milestones WHERE user_id = $1 AND milestone_days = $2 AND status = $3
	          ORDER BY created_at DESC, attempt_number DESC LIMIT 1`

	err := r.db.Get(m, query, userID, days, model.MilestoneStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *milestoneRepository) CountAttempts(userID string, days int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM milestones WHERE user_id = $1 AND milestone_days = $2`
	err := r.db.Get(&count, query, userID, days)
	return count, err
}

func (r *milestoneRepository) All(userID string) ([]*model.Milestone, error) {
	milestones := []*model.Milestone{}
	query := `SELECT * FROM milestones WHERE user_id = $1 ORDER BY milestone_days ASC, created_at ASC, attempt_number ASC`

	err := r.db.Select(&milestones, query, userID)
	if err != nil {
		return nil, err
	}
	return milestones, nil
}
