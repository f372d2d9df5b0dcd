package model

import (
	"time"
)

const (
	FileTypeExport = "export"
)

const (
	OwnerTypeUser = "user"
)

type File struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"userId"`
	OwnerType    string    `db:"owner_type" json:"ownerType"`
	OwnerID      string    `db:"owner_id" json:"ownerId"`
	Type         string    `db:"type" json:"type"`
	Filename     string    `db:"filename" json:"filename"`
	OriginalName string    `db:"original_name" json:"originalName"`
	MimeType     string    `db:"mime_type" json:"mimeType"`
	Size         int64     `db:"size" json:"size"`
	StoragePath  string    `db:"storage_path" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`

	URL string `db:"-" json:"url,omitempty"`
}
