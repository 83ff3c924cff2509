package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadySettled  = errors.New("payment already settled")
	ErrUnbalancedEntry = errors.New("journal entry is not balanced")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// nullJSON converts a raw JSON document into a value lib/pq sends as text,
// which jsonb columns accept. []byte would be sent as bytea.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
