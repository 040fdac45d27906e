package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"contactbook/api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const userColumns = "id, username, email, password_hash, confirmed, role, avatar, created_at"

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Confirmed,
		&user.Role,
		&user.AvatarURL,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (id, username, email, password_hash, confirmed, role, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Confirmed,
		user.Role,
		user.AvatarURL,
	)
	created, err := r.scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

// GetByUsernameAndRefreshToken matches a user only when the exact token
// string is still present in refresh_tokens, i.e. the token has not been
// rotated away.
func (r *UserRepository) GetByUsernameAndRefreshToken(ctx context.Context, username, token string) (models.User, error) {
	const query = `
		SELECT u.id, u.username, u.email, u.password_hash, u.confirmed, u.role, u.avatar, u.created_at
		FROM users u
		JOIN refresh_tokens rt ON rt.user_id = u.id
		WHERE u.username = $1 AND rt.token = $2`
	return r.scanUser(r.db.QueryRow(ctx, query, username, token))
}

func (r *UserRepository) ConfirmEmail(ctx context.Context, email string) error {
	const query = `UPDATE users SET confirmed = TRUE WHERE email = $1`
	cmd, err := r.db.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2 WHERE email = $1`
	cmd, err := r.db.Exec(ctx, query, email, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, email, avatarURL string) (models.User, error) {
	const query = `UPDATE users SET avatar = $2 WHERE email = $1 RETURNING ` + userColumns
	return r.scanUser(r.db.QueryRow(ctx, query, email, avatarURL))
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.UserRole) (models.User, error) {
	const query = `UPDATE users SET role = $2 WHERE id = $1 RETURNING ` + userColumns
	return r.scanUser(r.db.QueryRow(ctx, query, id, role))
}
