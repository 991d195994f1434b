/*
schema.go - Table registry

PURPOSE:
  The one place that knows which tables and columns exist. Handlers validate
  user-supplied table and column names against it before any store call, SQL
  stores generate their DDL from it, and value normalisation (dates, JSON) is
  driven by the column types recorded here.

CONVENTIONS:
  Every table has a surrogate "id" primary key and a "created_at" timestamp,
  added by Define. Natural keys of the master tables carry unique constraints
  so Upsert can resolve conflicts on them.

SEE ALSO:
  - store/sqlstore/ddl.go: DDL generation per dialect
*/
package store

import (
	"fmt"
	"regexp"
	"sort"
)

// ColumnType is the logical type of a column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
)

// Column describes one column.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes one table.
type Table struct {
	Name    string
	Columns []Column
	Unique  [][]string

	index map[string]Column
}

// Table names.
const (
	TableDispatchData        = "dispatch_data"
	TableCountMaster         = "count_master"
	TableMarketMaster        = "market_master"
	TableCustomerMaster      = "customer_master"
	TableYarnComplaints      = "yarn_complaints"
	TableFabricComplaints    = "fabric_complaints"
	TableDispatchResults     = "dispatch_results"
	TableCottonGroups        = "cotton_groups"
	TableCottonPlanning      = "cotton_planning"
	TableCottonPlanningBlend = "cotton_planning_blend"
	TableLayouts             = "table_layouts"
	TableLoginDetails        = "login_details"
	TableYarnRealization     = "yarn_realization"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a plain SQL identifier.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Define builds a table, prepending id and appending created_at.
func Define(name string, columns []Column, unique ...[]string) Table {
	all := make([]Column, 0, len(columns)+2)
	all = append(all, Column{Name: "id", Type: TypeInteger})
	all = append(all, columns...)
	all = append(all, Column{Name: "created_at", Type: TypeTimestamp})

	t := Table{Name: name, Columns: all, Unique: unique, index: make(map[string]Column, len(all))}
	for _, c := range all {
		t.index[c.Name] = c
	}
	return t
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	c, ok := t.index[name]
	return c, ok
}

// Has reports whether the table has the column.
func (t Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Validate checks that every name is a column of t.
func (t Table) Validate(names ...string) error {
	for _, n := range names {
		if !t.Has(n) {
			return &ColumnError{Table: t.Name, Column: n}
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func text(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: TypeText}
	}
	return cols
}

func typed(t ColumnType, names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: t}
	}
	return cols
}

func cols(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func complaintColumns() []Column {
	return cols(
		typed(TypeDate, "query_received_date", "invoice_date", "reply_date", "mfg_date"),
		text("mfg_month", "invoice_no", "lot_no", "customer_name", "bill_to_region", "market",
			"unit", "smpl_count", "nature_of_complaint", "complaint_mode"),
		typed(TypeReal, "complaint_qty"),
		text("status", "action_taken", "remark", "analysis_and_outcome", "cotton"),
	)
}

// =============================================================================
// SCHEMA REGISTRY
// =============================================================================

// Schema maps table name to definition.
var Schema = map[string]Table{}

func register(t Table) {
	Schema[t.Name] = t
}

func init() {
	register(Define(TableDispatchData, cols(
		text("billing_document"),
		typed(TypeDate, "billing_date"),
		text("bill_to_customer", "customer_name", "ship_to_city", "market", "lot_no", "plant",
			"product", "item_description", "division_description", "smpl_count", "blend",
			"billed_quantity"),
		typed(TypeReal, "no_of_package", "gross_weight"),
		text("vehicle_number", "canceled"),
	)))
	register(Define(TableCountMaster,
		text("item_description", "division_description", "smpl_count", "blend"),
		[]string{"item_description"}))
	register(Define(TableMarketMaster,
		text("ship_to_city", "market"),
		[]string{"ship_to_city"}))
	register(Define(TableCustomerMaster,
		text("bill_to_customer", "customer_name"),
		[]string{"bill_to_customer"}))
	register(Define(TableYarnComplaints, complaintColumns()))
	register(Define(TableFabricComplaints, complaintColumns()))
	register(Define(TableDispatchResults, cols(
		text("lot_no"),
		typed(TypeDate, "billing_date"),
		text("billing_document", "customer_name", "name_of_customer", "customer_short_name",
			"item_description", "smpl_count", "blend"),
		typed(TypeReal, "csp", "count_cv", "u_percent", "thin", "thick", "neps"),
		text("remarks"),
	)))
	register(Define(TableCottonGroups, cols(
		text("cotton_group", "cotton_variety"),
		typed(TypeReal, "avg_bale_weight"),
	)))
	register(Define(TableCottonPlanning, cols(
		text("unit"),
		typed(TypeReal, "laydown_consumption", "no_of_bales_per_laydown"),
	)))
	register(Define(TableCottonPlanningBlend, cols(
		typed(TypeInteger, "planning_id"),
		text("unit", "cotton_variety"),
		typed(TypeReal, "percentage", "calculated_bales"),
	)))
	register(Define(TableLayouts, cols(
		text("table_name", "layout_name"),
		typed(TypeJSON, "layout"),
		text("user_id"),
		typed(TypeTimestamp, "updated_at"),
	), []string{"table_name", "layout_name"}))
	register(Define(TableLoginDetails, cols(
		text("role", "full_name", "secret_password", "work_details"),
		typed(TypeTimestamp, "last_login", "updated_at"),
	)))
	register(Define(TableYarnRealization, cols(
		typed(TypeDate, "date"),
		text("period", "unit", "count"),
		typed(TypeReal, "realization"),
	)))
}

// Lookup returns the definition of a registered table.
func Lookup(name string) (Table, error) {
	t, ok := Schema[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// TableNames returns every registered table, sorted.
func TableNames() []string {
	names := make([]string, 0, len(Schema))
	for n := range Schema {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateQuery checks the table and every column q references.
func ValidateQuery(q Query) (Table, error) {
	t, err := Lookup(q.Table)
	if err != nil {
		return t, err
	}
	if err := t.Validate(q.Columns...); err != nil {
		return t, err
	}
	if err := ValidateFilters(t, q.Filters); err != nil {
		return t, err
	}
	for _, o := range q.OrderBy {
		if err := t.Validate(o.Column); err != nil {
			return t, err
		}
	}
	return t, nil
}

// ValidateFilters checks every column the filters reference.
func ValidateFilters(t Table, filters []Filter) error {
	for _, f := range filters {
		if err := t.Validate(f.Columns()...); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRow checks every key of row.
func ValidateRow(t Table, row Row) error {
	for k := range row {
		if err := t.Validate(k); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeRow returns a copy of row with blank date and timestamp values
// replaced by NULL, since typed stores reject "" for those columns.
func NormalizeRow(t Table, row Row) Row {
	out := row.Clone()
	for k, v := range out {
		c, ok := t.Column(k)
		if !ok {
			continue
		}
		if (c.Type == TypeDate || c.Type == TypeTimestamp) && v == "" {
			out[k] = nil
		}
	}
	return out
}
