package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/model"
)

var (
	ErrFileNotFound = errors.New("file not found")
)

type FileRepository interface {
	Create(file *model.File) error
	ByID(userID, id string) (*model.File, error)
	UserFiles(userID, fileType string) ([]*model.File, error)
	Delete(userID, id string) error
}

type fileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(file *model.File) error {
	query := `INSERT INTO files (id, user_id, owner_type, owner_id, type, filename, original_name, mime_type, size, storage_path, created_at)
	          VALUES (:id, :user_id, :owner_type, :owner_id, :type, :filename, :original_name, :mime_type, :size, :storage_path, :created_at)`

	_, err := r.db.NamedExec(query, file)
	return err
}

func (r *fileRepository) ByID(userID, id string) (*model.File, error) {
	file := &model.File{}
	query := `SELECT * FROM files WHERE id = $1 AND user_id = $2`

	err := r.db.Get(file, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (r *fileRepository) UserFiles(userID, fileType string) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT * FROM files WHERE user_id = $1 AND type = $2 ORDER BY created_at DESC`

	err := r.db.Select(&files, query, userID, fileType)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) Delete(userID, id string) error {
	result, err := r.db.Exec(`DELETE FROM files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectRows(result, ErrFileNotFound)
}
