package notify

import (
	"context"

	"tile-depot/internal/model"
	"tile-depot/internal/repository"
)

// StoreNotifier writes notifications to the in-app inbox table.
type StoreNotifier struct {
	repo repository.NotificationRepository
}

func NewStoreNotifier(repo repository.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

func (s *StoreNotifier) Notify(ctx context.Context, n model.Notification) error {
	return s.repo.Create(ctx, &n)
}
