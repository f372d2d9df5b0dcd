package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/storage"
	"golang.org/x/sync/errgroup"
)

var ErrExportUnavailable = errors.New("data export is not available")

// ExportDocument is the JSON written to storage.
type ExportDocument struct {
	ExportedAt  time.Time            `json:"exportedAt"`
	User        *model.User          `json:"user"`
	CheckIns    []*model.CheckIn     `json:"checkIns"`
	Milestones  []*model.Milestone   `json:"milestones"`
	CopingUsage []*model.CopingUsage `json:"copingUsage"`
}

type ExportService struct {
	fileRepo            repository.FileRepository
	userRepo            repository.UserRepository
	checkInRepo         repository.CheckInRepository
	milestoneRepo       repository.MilestoneRepository
	copingRepo          repository.CopingRepository
	subscriptionService *SubscriptionService
	storage             storage.Storage
	now                 func() time.Time
}

// NewExportService accepts a nil storage; exports then fail with ErrExportUnavailable.
func NewExportService(
	fileRepo repository.FileRepository,
	userRepo repository.UserRepository,
	checkInRepo repository.CheckInRepository,
	milestoneRepo repository.MilestoneRepository,
	copingRepo repository.CopingRepository,
	subscriptionService *SubscriptionService,
	storage storage.Storage,
) *ExportService {
	return &ExportService{
		fileRepo:            fileRepo,
		userRepo:            userRepo,
		checkInRepo:         checkInRepo,
		milestoneRepo:       milestoneRepo,
		copingRepo:          copingRepo,
		subscriptionService: subscriptionService,
		storage:             storage,
		now:                 time.Now,
	}
}

// Create writes the user's full history to storage and returns the file
// record with a short-lived download URL.
func (s *ExportService) Create(ctx context.Context, userID string) (*model.File, error) {
	err := s.subscriptionService.RequireFeature(userID, model.FeatureExport)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, ErrExportUnavailable
	}

	doc, err := s.collect(userID)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	filename := uuid.New().String() + ".json"
	storagePath := path.Join("exports", userID, filename)
	err = s.storage.Save(ctx, storagePath, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to save export: %w", err)
	}

	file := &model.File{
		ID:           uuid.New().String(),
		UserID:       userID,
		OwnerType:    model.OwnerTypeUser,
		OwnerID:      userID,
		Type:         model.FileTypeExport,
		Filename:     filename,
		OriginalName: fmt.Sprintf("recovery-export-%s.json", doc.ExportedAt.Format("2006-01-02")),
		MimeType:     "application/json",
		Size:         int64(len(body)),
		StoragePath:  storagePath,
		CreatedAt:    doc.ExportedAt,
	}
	err = s.fileRepo.Create(file)
	if err != nil {
		delErr := s.storage.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Error("failed to delete export during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	file.URL, err = s.storage.PresignedURL(ctx, storagePath)
	if err != nil {
		return nil, err
	}

	slog.Info("export created", "user_id", userID, "file_id", file.ID, "size", file.Size)
	return file, nil
}

func (s *ExportService) collect(userID string) (*ExportDocument, error) {
	doc := &ExportDocument{ExportedAt: s.now().UTC()}

	var g errgroup.Group
	g.Go(func() error {
		user, err := s.userRepo.ByID(userID)
		doc.User = user
		return err
	})
	g.Go(func() error {
		checkIns, err := s.checkInRepo.All(userID)
		doc.CheckIns = checkIns
		return err
	})
	g.Go(func() error {
		milestones, err := s.milestoneRepo.All(userID)
		doc.Milestones = milestones
		return err
	})
	g.Go(func() error {
		usage, err := s.copingRepo.Usages(userID, time.Time{})
		doc.CopingUsage = usage
		return err
	})
	err := g.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to collect export data: %w", err)
	}
	return doc, nil
}

// List returns previous exports, newest first, each with a fresh download URL.
func (s *ExportService) List(ctx context.Context, userID string) ([]*model.File, error) {
	files, err := s.fileRepo.UserFiles(userID, model.FileTypeExport)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	if s.storage == nil {
		return files, nil
	}

	for _, f := range files {
		f.URL, err = s.storage.PresignedURL(ctx, f.StoragePath)
		if err != nil {
			slog.Warn("failed to presign export", "error", err, "file_id", f.ID)
		}
	}
	return files, nil
}

// DeleteAll removes every stored export of the user. Missing objects are
// logged and skipped.
func (s *ExportService) DeleteAll(ctx context.Context, userID string) error {
	files, err := s.fileRepo.UserFiles(userID, model.FileTypeExport)
	if err != nil {
		return fmt.Errorf("failed to get user files: %w", err)
	}

	for _, f := range files {
		if s.storage != nil {
			err = s.storage.Delete(ctx, f.StoragePath)
			if err != nil {
				slog.Warn("failed to delete export from storage", "storage_path", f.StoragePath, "error", err)
			}
		}
		err = s.fileRepo.Delete(userID, f.ID)
		if err != nil {
			return fmt.Errorf("failed to delete file record: %w", err)
		}
	}
	return nil
}
