package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
)

var ErrActiveSubscription = errors.New("cannot delete account with active subscription")

type UserService struct {
	userRepository      repository.UserRepository
	exportService       *ExportService
	emailService        *EmailService
	subscriptionService *SubscriptionService
}

func NewUserService(
	userRepository repository.UserRepository,
	exportService *ExportService,
	emailService *EmailService,
	subscriptionService *SubscriptionService,
) *UserService {
	return &UserService{
		userRepository:      userRepository,
		exportService:       exportService,
		emailService:        emailService,
		subscriptionService: subscriptionService,
	}
}

func (s *UserService) ByID(id string) (*model.User, error) {
	return s.userRepository.ByID(id)
}

// DeleteAccount removes the user and, through cascading foreign keys, every
// check-in, milestone, coping record, token and subscription they own.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	sub, err := s.subscriptionService.Subscription(userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	// A paid plan blocks deletion while it is active or its period is still running.
	if sub != nil && sub.PlanID != model.SubscriptionPlanFree &&
		(sub.IsActive() || (sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(time.Now()))) {
		return ErrActiveSubscription
	}

	err = s.exportService.DeleteAll(ctx, userID)
	if err != nil {
		slog.Warn("failed to delete user exports", "user_id", userID, "error", err)
	}

	err = s.userRepository.Delete(userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	err = s.emailService.SendAccountDeletedEmail(user)
	if err != nil {
		slog.Warn("failed to send account deleted email", "user_id", userID, "error", err)
	}

	slog.Info("account deleted", "user_id", userID)
	return nil
}
