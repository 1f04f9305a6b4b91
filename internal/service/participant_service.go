package service

import (
	"context"

	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
)

// ParticipantService handles participant business logic.
type ParticipantService struct {
	participantRepo *repository.ParticipantRepository
}

func NewParticipantService(participantRepo *repository.ParticipantRepository) *ParticipantService {
	return &ParticipantService{participantRepo: participantRepo}
}

func (s *ParticipantService) GetByEmail(ctx context.Context, email string) (*model.Participant, error) {
	return s.participantRepo.GetByEmail(ctx, email)
}

func (s *ParticipantService) GetByID(ctx context.Context, id int) (*model.Participant, error) {
	return s.participantRepo.GetByID(ctx, id)
}

// Register creates a new participant account with a hashed password.
// Profile completion and subscription activation happen later, out of
// band of authentication — a participant can hold a login before either
// is true, but Eligibility will refuse to admit them to a quiz.
func (s *ParticipantService) Register(ctx context.Context, email, phone, passwordHash string) (*model.Participant, error) {
	return s.participantRepo.Create(ctx, email, phone, passwordHash)
}
