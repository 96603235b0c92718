package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) Create(ctx context.Context, user *User) error {
	const query = `
	INSERT INTO users (email, username, password_hash, role)
	VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'MEMBER'))
	RETURNING id, role, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, user.Email, user.Username, user.Password, user.Role).
		Scan(&user.ID, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, `
	SELECT id, email, username, password_hash, role, created_at, updated_at
	FROM users
	WHERE lower(email) = lower($1)
	LIMIT 1
	`, email)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, error) {
	return r.getOne(ctx, `
	SELECT id, email, username, password_hash, role, created_at, updated_at
	FROM users WHERE id = $1 LIMIT 1
	`, id)
}

func (r *PostgresRepo) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error) {
	return r.getOne(ctx, `
	UPDATE users
	SET username = COALESCE($2, username), email = COALESCE($3, email), updated_at = now()
	WHERE id = $1
	RETURNING id, email, username, password_hash, role, created_at, updated_at
	`, id, p.Username, p.Email)
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hashedPassword)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) getOne(ctx context.Context, query string, args ...any) (User, error) {
	var user User
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, args...).Scan(
		&user.ID, &user.Email, &user.Username, &user.Password, &user.Role,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, classify(err)
	}
	return user, nil
}

func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02":
			return ErrNotFound
		case "23505":
			return ErrAlreadyExists
		}
	}
	return err
}
