/*
account.go - User accounts and the deletion audit trail

PURPOSE:
  login_details holds the operators of the dashboard. Login is a plain
  equality lookup on role, full name and secret; a successful login stamps
  last_login. Deleting any record can name the operator who did it, and a
  line is appended to that operator's work_details.

SEE ALSO:
  - api/users.go: HTTP handlers
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/millops/store"
)

// ErrInvalidCredentials is returned when no account matches a login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// auditTimeLayout renders deletion times in the audit trail.
const auditTimeLayout = "1/2/2006, 3:04:05 PM"

// Credentials identify an operator.
type Credentials struct {
	Role           string `json:"role"`
	FullName       string `json:"full_name"`
	SecretPassword string `json:"secret_password"`
}

// Login returns the account matching c and records the login time.
func Login(ctx context.Context, s store.Store, c Credentials, now time.Time) (store.Row, error) {
	if c.Role == "" || c.FullName == "" || c.SecretPassword == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := store.First(ctx, s, store.Query{
		Table: store.TableLoginDetails,
		Filters: []store.Filter{
			store.Eq("role", c.Role),
			store.Eq("full_name", c.FullName),
			store.Eq("secret_password", c.SecretPassword),
		},
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.Update(ctx, store.TableLoginDetails,
		store.Row{"last_login": now.UTC()}, store.Eq("id", user["id"]))
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrInvalidCredentials
	}
	return rows[0], nil
}

// Names returns the distinct operator names, sorted.
func Names(ctx context.Context, s store.Store) ([]string, error) {
	rows, err := s.Fetch(ctx, store.Query{
		Table:   store.TableLoginDetails,
		Columns: []string{"full_name"},
		OrderBy: []store.Order{store.Asc("full_name")},
	})
	if err != nil {
		return nil, err
	}
	return store.Distinct(rows, "full_name"), nil
}

// RecordDeletion appends "Deleted <what> ID <id> at <time>" to the
// work_details of the operator named deletedBy. An unknown operator is not
// an error.
func RecordDeletion(ctx context.Context, s store.Store, deletedBy, what string, id any, now time.Time) error {
	deletedBy = strings.TrimSpace(deletedBy)
	if deletedBy == "" {
		return nil
	}

	var details string
	user, err := store.First(ctx, s, store.Query{
		Table:   store.TableLoginDetails,
		Columns: []string{"work_details"},
		Filters: []store.Filter{store.Eq("full_name", deletedBy)},
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if prev := store.Text(user["work_details"]); prev != "" {
		details = prev + "\n"
	}
	details += fmt.Sprintf("Deleted %s ID %s at %s", what, store.Text(id), now.Format(auditTimeLayout))

	_, err = s.Update(ctx, store.TableLoginDetails,
		store.Row{"work_details": details}, store.Eq("full_name", deletedBy))
	return err
}
