package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pabfc/membership-payments/internal/models"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) Get(ctx context.Context, id int64) (*models.Member, error) {
	var (
		m       models.Member
		contact sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, contact FROM members WHERE id = $1`, id,
	).Scan(&m.ID, &m.FirstName, &contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load member %d: %w", id, err)
	}
	m.Contact = contact.String
	return &m, nil
}
