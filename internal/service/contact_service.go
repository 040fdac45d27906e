package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"contactbook/api/internal/ids"
	"contactbook/api/internal/models"
	"contactbook/api/internal/repository"
)

var (
	ErrContactNotFound    = errors.New("contact not found")
	ErrContactEmailExists = errors.New("contact with such email already exists")
)

// ContactRepository is the persistence capability for address book
// entries.
type ContactRepository interface {
	List(ctx context.Context, userID string, skip, limit int) ([]models.Contact, error)
	GetByID(ctx context.Context, id, userID string) (models.Contact, error)
	Create(ctx context.Context, c models.Contact) (models.Contact, error)
	Update(ctx context.Context, c models.Contact) (models.Contact, error)
	Delete(ctx context.Context, id, userID string) (models.Contact, error)
	Search(ctx context.Context, userID, firstName, lastName, email string) ([]models.Contact, error)
	UpcomingBirthdays(ctx context.Context, userID string, from time.Time) ([]models.Contact, error)
}

type ContactService struct {
	contacts ContactRepository
	log      zerolog.Logger
}

func NewContactService(contacts ContactRepository, log zerolog.Logger) *ContactService {
	return &ContactService{contacts: contacts, log: log}
}

type ContactInput struct {
	FirstName string
	LastName  string
	Email     *string
	Phone     string
	Birthday  *time.Time
}

func (s *ContactService) List(ctx context.Context, user models.User, skip, limit int) ([]models.Contact, error) {
	return s.contacts.List(ctx, user.ID, skip, limit)
}

func (s *ContactService) Get(ctx context.Context, user models.User, id string) (models.Contact, error) {
	c, err := s.contacts.GetByID(ctx, id, user.ID)
	if err != nil {
		return models.Contact{}, mapContactError(err)
	}
	return c, nil
}

func (s *ContactService) Create(ctx context.Context, user models.User, input ContactInput) (models.Contact, error) {
	c, err := s.contacts.Create(ctx, models.Contact{
		ID:        ids.New(),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Birthday:  input.Birthday,
		UserID:    user.ID,
	})
	if err != nil {
		return models.Contact{}, mapContactError(err)
	}
	return c, nil
}

func (s *ContactService) Update(ctx context.Context, user models.User, id string, input ContactInput) (models.Contact, error) {
	c, err := s.contacts.Update(ctx, models.Contact{
		ID:        id,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Birthday:  input.Birthday,
		UserID:    user.ID,
	})
	if err != nil {
		return models.Contact{}, mapContactError(err)
	}
	return c, nil
}

func (s *ContactService) Delete(ctx context.Context, user models.User, id string) (models.Contact, error) {
	c, err := s.contacts.Delete(ctx, id, user.ID)
	if err != nil {
		return models.Contact{}, mapContactError(err)
	}
	return c, nil
}

func (s *ContactService) Search(ctx context.Context, user models.User, firstName, lastName, email string) ([]models.Contact, error) {
	return s.contacts.Search(ctx, user.ID, firstName, lastName, email)
}

// UpcomingBirthdays lists contacts with a birthday in the next 7 days.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, user models.User) ([]models.Contact, error) {
	return s.contacts.UpcomingBirthdays(ctx, user.ID, time.Now())
}

func mapContactError(err error) error {
	switch {
	case errors.Is(err, repository.ErrContactNotFound):
		return ErrContactNotFound
	case errors.Is(err, repository.ErrContactEmailExists):
		return ErrContactEmailExists
	default:
		return err
	}
}
