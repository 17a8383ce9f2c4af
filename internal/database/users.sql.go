package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, business_id, email, hashed_password, full_name, role, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.BusinessID,
		&u.Email,
		&u.HashedPassword,
		&u.FullName,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users
WHERE email = $1 AND is_active = true
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (business_id, email, hashed_password, full_name, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	BusinessID     uuid.UUID `json:"business_id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.BusinessID,
		arg.Email,
		arg.HashedPassword,
		arg.FullName,
		arg.Role,
	))
}

const listUsersByBusiness = `-- name: ListUsersByBusiness :many
SELECT ` + userColumns + ` FROM users
WHERE business_id = $1 AND is_active = true
ORDER BY full_name
`

func (q *Queries) ListUsersByBusiness(ctx context.Context, businessID uuid.UUID) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsersByBusiness, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateUser = `-- name: UpdateUser :one
UPDATE users SET email = $1, full_name = $2, role = $3, updated_at = now()
WHERE id = $4 AND business_id = $5 AND is_active = true
RETURNING ` + userColumns

type UpdateUserParams struct {
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUser,
		arg.Email,
		arg.FullName,
		arg.Role,
		arg.ID,
		arg.BusinessID,
	))
}

const deactivateUser = `-- name: DeactivateUser :one
UPDATE users SET is_active = false, updated_at = now()
WHERE id = $1 AND business_id = $2 AND is_active = true
RETURNING id
`

type DeactivateUserParams struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
}

func (q *Queries) DeactivateUser(ctx context.Context, arg DeactivateUserParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, deactivateUser, arg.ID, arg.BusinessID).Scan(&id)
	return id, err
}
