package cotton

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/memory"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func planning(unit string, blend ...BlendLine) Planning {
	return Planning{
		Unit:                unit,
		LaydownConsumption:  dec("12000"),
		NoOfBalesPerLaydown: dec("72"),
		Blend:               blend,
	}
}

func TestCalculatedBales(t *testing.T) {
	assert.Equal(t, "24", CalculatedBales(decimal.NewFromInt(72), decimal.RequireFromString("33.3333")).StringFixed(0))
	assert.True(t, CalculatedBales(decimal.NewFromInt(72), decimal.RequireFromString("33.3333")).Equal(decimal.RequireFromString("24")))
	assert.True(t, CalculatedBales(decimal.NewFromInt(65), decimal.RequireFromString("15")).Equal(decimal.RequireFromString("9.75")))
	assert.True(t, CalculatedBales(decimal.NewFromInt(7), decimal.RequireFromString("33")).Equal(decimal.RequireFromString("2.31")))
}

func TestGroup_Validate(t *testing.T) {
	assert.NoError(t, Group{CottonGroup: "MCU5", CottonVariety: "Shankar-6", AvgBaleWeight: dec("170")}.Validate())
	assert.ErrorIs(t, Group{CottonGroup: "MCU5", CottonVariety: " "}.Validate(), ErrMissingFields)
	assert.ErrorIs(t, Group{CottonGroup: "MCU5", CottonVariety: "S6"}.Validate(), ErrMissingFields)
}

func TestGroups(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	b, err := CreateGroup(ctx, s, Group{CottonGroup: "B", CottonVariety: "V2", AvgBaleWeight: dec("165.5")})
	require.NoError(t, err)
	_, err = CreateGroup(ctx, s, Group{CottonGroup: "A", CottonVariety: "V1", AvgBaleWeight: dec("170")})
	require.NoError(t, err)
	assert.Equal(t, 165.5, b["avg_bale_weight"])

	groups, err := ListGroups(ctx, s)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "A", groups[0]["cotton_group"])

	id, _ := store.ID(b["id"])
	updated, err := UpdateGroup(ctx, s, id, Group{CottonGroup: "B", CottonVariety: "V3", AvgBaleWeight: dec("160")})
	require.NoError(t, err)
	assert.Equal(t, "V3", updated["cotton_variety"])

	_, err = UpdateGroup(ctx, s, 999, Group{CottonGroup: "B", CottonVariety: "V3", AvgBaleWeight: dec("160")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreatePlanning_DerivesBales(t *testing.T) {
	// GIVEN: A blend with one derived and one explicit line
	ctx := context.Background()
	s := memory.New()
	p := planning("U1",
		BlendLine{CottonVariety: "Shankar-6", Percentage: decimal.NewFromInt(60)},
		BlendLine{CottonVariety: "MCU5", Percentage: decimal.NewFromInt(40), CalculatedBales: dec("30")},
	)

	// WHEN: Creating the planning
	created, err := CreatePlanning(ctx, s, p)
	require.NoError(t, err)

	// THEN: The lines reference the planning and carry the bales
	lines := s.Rows(store.TableCottonPlanningBlend)
	require.Len(t, lines, 2)
	assert.Equal(t, created["id"], lines[0]["planning_id"])
	assert.Equal(t, "U1", lines[0]["unit"])
	assert.Equal(t, 43.2, lines[0]["calculated_bales"])
	assert.Equal(t, 30.0, lines[1]["calculated_bales"])
}

func TestCreatePlanning_Invalid(t *testing.T) {
	_, err := CreatePlanning(context.Background(), memory.New(), Planning{Unit: "U1"})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestListPlannings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	empty, err := ListPlannings(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = CreatePlanning(ctx, s, planning("U2", BlendLine{CottonVariety: "V", Percentage: decimal.NewFromInt(100)}))
	require.NoError(t, err)
	_, err = CreatePlanning(ctx, s, planning("U1"))
	require.NoError(t, err)

	list, err := ListPlannings(ctx, s)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "U1", list[0]["unit"])
	assert.Equal(t, []store.Row{}, list[0][BlendKey])
	assert.Len(t, list[1][BlendKey], 1)
}

func TestUpdatePlanning(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	created, err := CreatePlanning(ctx, s, planning("U1",
		BlendLine{CottonVariety: "A", Percentage: decimal.NewFromInt(50)},
		BlendLine{CottonVariety: "B", Percentage: decimal.NewFromInt(50)}))
	require.NoError(t, err)
	id, _ := store.ID(created["id"])

	t.Run("no blend keeps lines but renames their unit", func(t *testing.T) {
		require.NoError(t, UpdatePlanning(ctx, s, id, planning("U9")))
		lines := s.Rows(store.TableCottonPlanningBlend)
		require.Len(t, lines, 2)
		assert.Equal(t, "U9", lines[0]["unit"])
	})

	t.Run("blend replaces lines", func(t *testing.T) {
		require.NoError(t, UpdatePlanning(ctx, s, id, planning("U9",
			BlendLine{CottonVariety: "C", Percentage: decimal.NewFromInt(100)})))
		lines := s.Rows(store.TableCottonPlanningBlend)
		require.Len(t, lines, 1)
		assert.Equal(t, "C", lines[0]["cotton_variety"])
	})

	t.Run("empty blend clears lines", func(t *testing.T) {
		p := planning("U9")
		p.Blend = []BlendLine{}
		require.NoError(t, UpdatePlanning(ctx, s, id, p))
		assert.Empty(t, s.Rows(store.TableCottonPlanningBlend))
	})

	t.Run("missing planning", func(t *testing.T) {
		err := UpdatePlanning(ctx, s, 999, planning("U9"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeletePlanning(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	keep, err := CreatePlanning(ctx, s, planning("U1", BlendLine{CottonVariety: "A", Percentage: decimal.NewFromInt(100)}))
	require.NoError(t, err)
	gone, err := CreatePlanning(ctx, s, planning("U2", BlendLine{CottonVariety: "B", Percentage: decimal.NewFromInt(100)}))
	require.NoError(t, err)

	id, _ := store.ID(gone["id"])
	require.NoError(t, DeletePlanning(ctx, s, id))

	assert.Len(t, s.Rows(store.TableCottonPlanning), 1)
	lines := s.Rows(store.TableCottonPlanningBlend)
	require.Len(t, lines, 1)
	assert.Equal(t, keep["id"], lines[0]["planning_id"])
}
