/*
cotton.go - Cotton groups and laydown planning

PURPOSE:
  Cotton groups list the varieties a mill buys with their average bale
  weight. A planning records, per unit, the laydown consumption and bales
  per laydown, plus its blend: the share of each variety in the laydown.

BLEND LINES:
  Each line carries a percentage and the number of bales it takes from a
  laydown. When the client leaves calculated_bales out it is derived as

    no_of_bales_per_laydown * percentage / 100, rounded to 2 places

WRITES:
  A planning and its blend lines are written in one transaction when the
  store supports it. Updating a planning always renames its blend lines to
  the planning's unit; the lines themselves are only replaced when the
  request carries a blend (an empty blend clears them).

SEE ALSO:
  - api/cotton.go: HTTP handlers
*/
package cotton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/millops/store"
)

// BlendKey is the key listed plannings carry their blend lines under.
const BlendKey = "cotton_planning_blend"

// ErrMissingFields is returned when a required field is absent.
var ErrMissingFields = errors.New("missing required fields")

var hundred = decimal.NewFromInt(100)

// =============================================================================
// GROUPS
// =============================================================================

// Group is one cotton variety.
type Group struct {
	CottonGroup   string           `json:"cotton_group"`
	CottonVariety string           `json:"cotton_variety"`
	AvgBaleWeight *decimal.Decimal `json:"avg_bale_weight"`
}

// Validate checks the required fields.
func (g Group) Validate() error {
	if strings.TrimSpace(g.CottonGroup) == "" || strings.TrimSpace(g.CottonVariety) == "" || g.AvgBaleWeight == nil {
		return fmt.Errorf("%w: cotton_group, cotton_variety and avg_bale_weight are required", ErrMissingFields)
	}
	return nil
}

func (g Group) row() store.Row {
	return store.Row{
		"cotton_group":    g.CottonGroup,
		"cotton_variety":  g.CottonVariety,
		"avg_bale_weight": g.AvgBaleWeight.InexactFloat64(),
	}
}

// ListGroups returns every group ordered by cotton_group.
func ListGroups(ctx context.Context, s store.Store) ([]store.Row, error) {
	return s.Fetch(ctx, store.Query{
		Table:   store.TableCottonGroups,
		OrderBy: []store.Order{store.Asc("cotton_group"), store.Asc("id")},
	})
}

// CreateGroup inserts g.
func CreateGroup(ctx context.Context, s store.Store, g Group) (store.Row, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.Insert(ctx, store.TableCottonGroups, []store.Row{g.row()})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// UpdateGroup replaces the group with id.
func UpdateGroup(ctx context.Context, s store.Store, id int64, g Group) (store.Row, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.Update(ctx, store.TableCottonGroups, g.row(), store.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// =============================================================================
// PLANNING
// =============================================================================

// BlendLine is one variety of a planning's blend.
type BlendLine struct {
	CottonVariety   string           `json:"cotton_variety"`
	Percentage      decimal.Decimal  `json:"percentage"`
	CalculatedBales *decimal.Decimal `json:"calculated_bales"`
}

// Planning is a laydown plan for one unit.
type Planning struct {
	Unit                string           `json:"unit"`
	LaydownConsumption  *decimal.Decimal `json:"laydown_consumption"`
	NoOfBalesPerLaydown *decimal.Decimal `json:"no_of_bales_per_laydown"`

	// Blend is nil when the request did not carry one.
	Blend []BlendLine `json:"blend"`
}

// Validate checks the required fields.
func (p Planning) Validate() error {
	if strings.TrimSpace(p.Unit) == "" || p.LaydownConsumption == nil || p.NoOfBalesPerLaydown == nil {
		return fmt.Errorf("%w: unit, laydown_consumption and no_of_bales_per_laydown are required", ErrMissingFields)
	}
	return nil
}

// CalculatedBales is bales * percentage / 100, rounded to 2 places.
func CalculatedBales(bales, percentage decimal.Decimal) decimal.Decimal {
	return bales.Mul(percentage).Div(hundred).Round(2)
}

func (p Planning) row() store.Row {
	return store.Row{
		"unit":                    p.Unit,
		"laydown_consumption":     p.LaydownConsumption.InexactFloat64(),
		"no_of_bales_per_laydown": p.NoOfBalesPerLaydown.InexactFloat64(),
	}
}

func (p Planning) blendRows(planningID int64) []store.Row {
	rows := make([]store.Row, len(p.Blend))
	for i, b := range p.Blend {
		bales := CalculatedBales(*p.NoOfBalesPerLaydown, b.Percentage)
		if b.CalculatedBales != nil {
			bales = *b.CalculatedBales
		}
		rows[i] = store.Row{
			"planning_id":      planningID,
			"unit":             p.Unit,
			"cotton_variety":   b.CottonVariety,
			"percentage":       b.Percentage.InexactFloat64(),
			"calculated_bales": bales.InexactFloat64(),
		}
	}
	return rows
}

// ListPlannings returns every planning ordered by unit, each with its blend
// lines under BlendKey.
func ListPlannings(ctx context.Context, s store.Store) ([]store.Row, error) {
	plannings, err := s.Fetch(ctx, store.Query{
		Table:   store.TableCottonPlanning,
		OrderBy: []store.Order{store.Asc("unit"), store.Asc("id")},
	})
	if err != nil {
		return nil, err
	}
	if len(plannings) == 0 {
		return plannings, nil
	}

	ids := make([]any, len(plannings))
	for i, p := range plannings {
		ids[i] = p["id"]
	}
	blends, err := s.Fetch(ctx, store.Query{
		Table:   store.TableCottonPlanningBlend,
		Filters: []store.Filter{store.In("planning_id", ids...)},
		OrderBy: []store.Order{store.Asc("id")},
	})
	if err != nil {
		return nil, err
	}

	byPlanning := map[string][]store.Row{}
	for _, b := range blends {
		key := store.Text(b["planning_id"])
		byPlanning[key] = append(byPlanning[key], b)
	}
	for _, p := range plannings {
		lines := byPlanning[store.Text(p["id"])]
		if lines == nil {
			lines = []store.Row{}
		}
		p[BlendKey] = lines
	}
	return plannings, nil
}

// CreatePlanning stores p and its blend lines.
func CreatePlanning(ctx context.Context, s store.Store, p Planning) (store.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var created store.Row
	err := store.RunInTx(ctx, s, func(tx store.Store) error {
		rows, err := tx.Insert(ctx, store.TableCottonPlanning, []store.Row{p.row()})
		if err != nil {
			return err
		}
		created = rows[0]

		if len(p.Blend) == 0 {
			return nil
		}
		id, ok := store.ID(created["id"])
		if !ok {
			return fmt.Errorf("planning inserted without id: %v", created["id"])
		}
		_, err = tx.Insert(ctx, store.TableCottonPlanningBlend, p.blendRows(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePlanning replaces the planning with id.
func UpdatePlanning(ctx context.Context, s store.Store, id int64, p Planning) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return store.RunInTx(ctx, s, func(tx store.Store) error {
		rows, err := tx.Update(ctx, store.TableCottonPlanning, p.row(), store.Eq("id", id))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return store.ErrNotFound
		}

		if _, err := tx.Update(ctx, store.TableCottonPlanningBlend,
			store.Row{"unit": p.Unit}, store.Eq("planning_id", id)); err != nil {
			return err
		}

		if p.Blend == nil {
			return nil
		}
		if _, err := tx.Delete(ctx, store.TableCottonPlanningBlend, store.Eq("planning_id", id)); err != nil {
			return err
		}
		if len(p.Blend) == 0 {
			return nil
		}
		_, err = tx.Insert(ctx, store.TableCottonPlanningBlend, p.blendRows(id))
		return err
	})
}

// DeletePlanning removes the planning with id and its blend lines.
func DeletePlanning(ctx context.Context, s store.Store, id int64) error {
	return store.RunInTx(ctx, s, func(tx store.Store) error {
		if _, err := tx.Delete(ctx, store.TableCottonPlanningBlend, store.Eq("planning_id", id)); err != nil {
			return err
		}
		_, err := tx.Delete(ctx, store.TableCottonPlanning, store.Eq("id", id))
		return err
	})
}
