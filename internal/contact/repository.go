package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/redmonkez12/contacts-api/internal/database"
)

// Repository handles contact persistence. Every query is scoped by the
// owning user id: a contact owned by someone else behaves exactly like a
// contact that does not exist.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new contact owned by the given user
func (r *Repository) Create(ctx context.Context, ownerID int64, input CreateInput) (*Contact, error) {
	dbContact := &database.Contact{
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Email:          input.Email,
		Phone:          input.Phone,
		Birthday:       input.Birthday,
		AdditionalData: input.AdditionalData,
		UserID:         ownerID,
	}

	_, err := r.db.NewInsert().
		Model(dbContact).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return mapDBContactToModel(dbContact), nil
}

// GetByID retrieves one of the owner's contacts, or nil if it does not
// exist or belongs to another user
func (r *Repository) GetByID(ctx context.Context, id, ownerID int64) (*Contact, error) {
	dbContact := new(database.Contact)
	err := r.db.NewSelect().
		Model(dbContact).
		Where("id = ?", id).
		Where("user_id = ?", ownerID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return mapDBContactToModel(dbContact), nil
}

// List returns a page of the owner's contacts ordered by id. When search is
// non-empty it matches case-insensitively against name and email.
func (r *Repository) List(ctx context.Context, ownerID int64, limit, offset int, search string) ([]*Contact, error) {
	var dbContacts []*database.Contact

	q := r.db.NewSelect().
		Model(&dbContacts).
		Where("user_id = ?", ownerID)

	if search != "" {
		pattern := "%" + search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("first_name ILIKE ?", pattern).
				WhereOr("last_name ILIKE ?", pattern).
				WhereOr("email ILIKE ?", pattern)
		})
	}

	err := q.Order("id ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	contacts := make([]*Contact, 0, len(dbContacts))
	for _, c := range dbContacts {
		contacts = append(contacts, mapDBContactToModel(c))
	}

	return contacts, nil
}

// Update applies a partial update to one of the owner's contacts. Returns
// nil when the contact does not exist or belongs to another user.
func (r *Repository) Update(ctx context.Context, id, ownerID int64, input UpdateInput) (*Contact, error) {
	if input.Empty() {
		return r.GetByID(ctx, id, ownerID)
	}

	dbContact := new(database.Contact)
	q := r.db.NewUpdate().
		Model(dbContact).
		Where("id = ?", id).
		Where("user_id = ?", ownerID).
		Returning("*")

	if input.FirstName != nil {
		q = q.Set("first_name = ?", *input.FirstName)
	}
	if input.LastName != nil {
		q = q.Set("last_name = ?", *input.LastName)
	}
	if input.Email != nil {
		q = q.Set("email = ?", *input.Email)
	}
	if input.Phone != nil {
		q = q.Set("phone = ?", *input.Phone)
	}
	if input.Birthday != nil {
		q = q.Set("birthday = ?", *input.Birthday)
	}
	if input.AdditionalData != nil {
		q = q.Set("additional_data = ?", *input.AdditionalData)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	return mapDBContactToModel(dbContact), nil
}

// Delete removes one of the owner's contacts and returns its last-known
// values, or nil when it does not exist or belongs to another user
func (r *Repository) Delete(ctx context.Context, id, ownerID int64) (*Contact, error) {
	dbContact := new(database.Contact)
	err := r.db.NewDelete().
		Model(dbContact).
		Where("id = ?", id).
		Where("user_id = ?", ownerID).
		Returning("*").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to delete contact: %w", err)
	}

	return mapDBContactToModel(dbContact), nil
}

// UpcomingBirthdays returns the owner's contacts whose birthday, projected
// onto the current year (or next if already passed), falls within
// [today, today+withinDays] inclusive. The window filter runs in Go because
// the year-wrap and Feb-29 projection do not translate to portable SQL.
func (r *Repository) UpcomingBirthdays(ctx context.Context, ownerID int64, withinDays int) ([]*Contact, error) {
	var dbContacts []*database.Contact

	err := r.db.NewSelect().
		Model(&dbContacts).
		Where("user_id = ?", ownerID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts for birthday window: %w", err)
	}

	today := time.Now()
	upcoming := make([]*Contact, 0)
	for _, c := range dbContacts {
		if birthdayInWindow(c.Birthday, today, withinDays) {
			upcoming = append(upcoming, mapDBContactToModel(c))
		}
	}

	return upcoming, nil
}

func mapDBContactToModel(dbc *database.Contact) *Contact {
	return &Contact{
		ID:             dbc.ID,
		FirstName:      dbc.FirstName,
		LastName:       dbc.LastName,
		Email:          dbc.Email,
		Phone:          dbc.Phone,
		Birthday:       dbc.Birthday,
		AdditionalData: dbc.AdditionalData,
		CreatedAt:      dbc.CreatedAt,
		UserID:         dbc.UserID,
	}
}
