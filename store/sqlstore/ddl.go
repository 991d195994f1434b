package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/millops/store"
)

// indexes lists the secondary indexes per table. The dispatch_data entries
// back the reconciler's per-key updates and the duplicate narrowing query.
var indexes = map[string][][]string{
	store.TableDispatchData: {
		{"billing_document"},
		{"billing_date"},
		{"item_description"},
		{"ship_to_city"},
		{"bill_to_customer"},
		{"lot_no"},
	},
	store.TableDispatchResults:     {{"lot_no"}},
	store.TableCottonPlanningBlend: {{"planning_id"}},
	store.TableLoginDetails:        {{"full_name"}},
	store.TableYarnRealization:     {{"date", "period"}},
}

// CreateTableSQL renders the CREATE TABLE statement for t.
func CreateTableSQL(d Dialect, t store.Table) (string, error) {
	table, err := quote(t.Name)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns)+len(t.Unique))
	for _, c := range t.Columns {
		col, err := quote(c.Name)
		if err != nil {
			return "", err
		}
		switch c.Name {
		case "id":
			defs = append(defs, d.PrimaryKey)
		case "created_at":
			defs = append(defs, fmt.Sprintf("%s %s NOT NULL DEFAULT %s", col, d.Types[c.Type], d.Now))
		default:
			defs = append(defs, col+" "+d.Types[c.Type])
		}
	}
	for _, u := range t.Unique {
		cols, err := quoteAll(u)
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("CONSTRAINT \"uq_%s_%s\" UNIQUE (%s)",
			t.Name, strings.Join(u, "_"), strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t")), nil
}

// CreateIndexSQL renders the CREATE INDEX statements for t.
func CreateIndexSQL(t store.Table) ([]string, error) {
	var stmts []string
	for _, idx := range indexes[t.Name] {
		cols, err := quoteAll(idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS \"idx_%s_%s\" ON \"%s\" (%s)",
			t.Name, strings.Join(idx, "_"), t.Name, strings.Join(cols, ", ")))
	}
	return stmts, nil
}

// Migrate creates every registered table and index that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, name := range store.TableNames() {
		t := store.Schema[name]

		ddl, err := CreateTableSQL(s.d, t)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}

		idx, err := CreateIndexSQL(t)
		if err != nil {
			return err
		}
		for _, stmt := range idx {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", name, err)
			}
		}
	}
	return nil
}
