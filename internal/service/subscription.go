package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
)

var ErrPremiumRequired = errors.New("this feature requires a premium subscription")

type SubscriptionService struct {
	repo repository.SubscriptionRepository
}

func NewSubscriptionService(repo repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo}
}

func (s *SubscriptionService) CreateFreeSubscription(userID string) error {
	now := time.Now().UTC()
	subscription := &model.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanID:    model.SubscriptionPlanFree,
		Status:    model.SubscriptionStatusActive,
		Currency:  "usd",
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.repo.Create(subscription)
	if err != nil {
		return fmt.Errorf("failed to create free subscription: %w", err)
	}

	return nil
}

func (s *SubscriptionService) Subscription(userID string) (*model.Subscription, error) {
	sub, err := s.repo.ByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// RequireFeature returns ErrPremiumRequired unless the user's plan includes feature.
func (s *SubscriptionService) RequireFeature(userID, feature string) error {
	sub, err := s.repo.ByUserID(userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return ErrPremiumRequired
	}
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.HasFeature(feature) {
		return ErrPremiumRequired
	}
	return nil
}

func (s *SubscriptionService) ByProviderSubscriptionID(providerSubID string) (*model.Subscription, error) {
	sub, err := s.repo.ByProviderSubscriptionID(providerSubID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by provider ID: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) ByProviderCustomerID(customerID string) (*model.Subscription, error) {
	sub, err := s.repo.ByProviderCustomerID(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by customer ID: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) UpdateSubscription(sub *model.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	err := s.repo.Update(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

func (s *SubscriptionService) DowngradeToFree(sub *model.Subscription) error {
	sub.PlanID = model.SubscriptionPlanFree
	sub.Status = model.SubscriptionStatusActive
	sub.ProviderSubscriptionID = nil
	sub.CurrentPeriodEnd = nil
	sub.Amount = nil
	sub.Currency = "usd"
	sub.Interval = nil

	return s.UpdateSubscription(sub)
}
