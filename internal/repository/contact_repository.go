package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"contactbook/api/internal/models"
)

var (
	ErrContactNotFound    = errors.New("contact not found")
	ErrContactEmailExists = errors.New("contact email already exists")
)

const contactColumns = "id, first_name, last_name, email, phone, birthday, created_at, updated_at, user_id"

type ContactRepository struct {
	db DB
}

func NewContactRepository(db DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) scanContact(row pgx.Row) (models.Contact, error) {
	var c models.Contact
	if err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Birthday,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.UserID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contact{}, ErrContactNotFound
		}
		return models.Contact{}, err
	}
	return c, nil
}

func (r *ContactRepository) collect(rows pgx.Rows) ([]models.Contact, error) {
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := r.scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) List(ctx context.Context, userID string, skip, limit int) ([]models.Contact, error) {
	const query = `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = $1
		ORDER BY created_at
		OFFSET $2 LIMIT $3`

	rows, err := r.db.Query(ctx, query, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *ContactRepository) GetByID(ctx context.Context, id, userID string) (models.Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`
	return r.scanContact(r.db.QueryRow(ctx, query, id, userID))
}

func (r *ContactRepository) Create(ctx context.Context, c models.Contact) (models.Contact, error) {
	const query = `
		INSERT INTO contacts (id, first_name, last_name, email, phone, birthday, created_at, updated_at, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), $7)
		RETURNING ` + contactColumns

	created, err := r.scanContact(r.db.QueryRow(ctx, query,
		c.ID,
		c.FirstName,
		c.LastName,
		c.Email,
		c.Phone,
		c.Birthday,
		c.UserID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Contact{}, ErrContactEmailExists
		}
		return models.Contact{}, err
	}
	return created, nil
}

func (r *ContactRepository) Update(ctx context.Context, c models.Contact) (models.Contact, error) {
	const query = `
		UPDATE contacts
		SET first_name = $3, last_name = $4, email = $5, phone = $6, birthday = $7, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contactColumns

	updated, err := r.scanContact(r.db.QueryRow(ctx, query,
		c.ID,
		c.UserID,
		c.FirstName,
		c.LastName,
		c.Email,
		c.Phone,
		c.Birthday,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Contact{}, ErrContactEmailExists
		}
		return models.Contact{}, err
	}
	return updated, nil
}

func (r *ContactRepository) Delete(ctx context.Context, id, userID string) (models.Contact, error) {
	const query = `DELETE FROM contacts WHERE id = $1 AND user_id = $2 RETURNING ` + contactColumns
	return r.scanContact(r.db.QueryRow(ctx, query, id, userID))
}

// Search filters by optional name and email fragments, case-insensitive.
func (r *ContactRepository) Search(ctx context.Context, userID, firstName, lastName, email string) ([]models.Contact, error) {
	const query = `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = $1
		  AND ($2 = '' OR first_name ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR last_name ILIKE '%' || $3 || '%')
		  AND ($4 = '' OR email ILIKE '%' || $4 || '%')
		ORDER BY last_name, first_name`

	rows, err := r.db.Query(ctx, query, userID, firstName, lastName, email)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// UpcomingBirthdays returns contacts whose birthday (month and day) falls
// within the next seven days, year-wrap included.
func (r *ContactRepository) UpcomingBirthdays(ctx context.Context, userID string, from time.Time) ([]models.Contact, error) {
	days := make([]string, 0, 8)
	for i := 0; i <= 7; i++ {
		days = append(days, from.AddDate(0, 0, i).Format("01-02"))
	}

	const query = `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = $1 AND birthday IS NOT NULL
		  AND to_char(birthday, 'MM-DD') = ANY($2)
		ORDER BY to_char(birthday, 'MM-DD')`

	rows, err := r.db.Query(ctx, query, userID, days)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}
