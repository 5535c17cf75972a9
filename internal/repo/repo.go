package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrValidation marks requests rejected for bad or incomplete input.
// The HTTP layer maps it to 400.
var ErrValidation = errors.New("validation failed")

// ErrIntegrity marks stored rows that are missing fields required for
// display. Callers must surface these loudly instead of rendering
// placeholders.
var ErrIntegrity = errors.New("data integrity fault")

// Scoped is an owner-filtered view of the repository. Every query issued
// through it carries the owner's user id, so a row belonging to a different
// owner is indistinguishable from an absent row.
type Scoped struct {
	r      Repo
	UserID string
}

func (r Repo) ForUser(userID string) Scoped {
	return Scoped{r: r, UserID: userID}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func integrityErr(table, id, field string) error {
	return fmt.Errorf("%w: %s %s missing %s", ErrIntegrity, table, id, field)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
