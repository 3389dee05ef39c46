package user

import (
	"fmt"
)

type Repository interface {
	GetByID(userID int64) (*User, error)
	GetByIDs(userIDs []int64) ([]*User, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(userID int64) (*User, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

// DisplayName returns the user's name for notification messages. A missing
// user or an empty name falls back to a neutral placeholder so notification
// bodies never leak raw IDs.
func (s *Service) DisplayName(userID int64) (string, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil || u.Name == "" {
		return "A teammate", nil
	}
	return u.Name, nil
}

// EmailFor resolves a delivery address for the email channel.
func (s *Service) EmailFor(userID int64) (string, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve email for user %d: %w", userID, err)
	}
	if !u.IsActive {
		return "", fmt.Errorf("user %d is inactive", userID)
	}
	return u.Email, nil
}
