package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/store"
)

// =============================================================================
// COMPLAINTS
// =============================================================================

// complaintRoutes serves one complaint table. Yarn and fabric complaints
// share columns and behaviour.
type complaintRoutes struct {
	h     *Handler
	table string
	what  string
}

func (h *Handler) yarnComplaints() complaintRoutes {
	return complaintRoutes{h: h, table: store.TableYarnComplaints, what: "yarn complaint"}
}

func (h *Handler) fabricComplaints() complaintRoutes {
	return complaintRoutes{h: h, table: store.TableFabricComplaints, what: "fabric complaint"}
}

// List returns complaints, latest received first.
// GET /api/{yarn|fabric}-complaints?startDate&endDate&<column>=<value[,value...]>
func (c complaintRoutes) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := dateRange(q, "query_received_date")
	filters = append(filters, listFilters(q, "startDate", "endDate")...)

	rows, err := c.h.Store.Fetch(r.Context(), store.Query{
		Table:   c.table,
		Filters: filters,
		OrderBy: []store.Order{store.Desc("query_received_date"), store.Desc("id")},
	})
	if err != nil {
		c.h.fail(w, r, "Failed to get complaints", err)
		return
	}
	writeData(w, rows)
}

// Create stores one complaint.
// POST /api/{yarn|fabric}-complaints
func (c complaintRoutes) Create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRow(r)
	if err != nil {
		c.h.fail(w, r, "Failed to create complaint", err)
		return
	}

	rows, err := c.h.Store.Insert(r.Context(), c.table, []store.Row{clean(body)})
	if err != nil {
		c.h.fail(w, r, "Failed to create complaint", err)
		return
	}
	c.recordMarkets(r, rows)
	writeData(w, rows[0])
}

// Bulk stores an array of complaints.
// POST /api/{yarn|fabric}-complaints/bulk
func (c complaintRoutes) Bulk(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRows(r)
	if err != nil {
		c.h.fail(w, r, "Failed to add complaints", err)
		return
	}
	if len(body) == 0 {
		writeData(w, []store.Row{})
		return
	}

	rows, err := c.h.Store.Insert(r.Context(), c.table, cleanAll(body))
	if err != nil {
		c.h.fail(w, r, "Failed to add complaints", err)
		return
	}
	c.recordMarkets(r, rows)
	writeData(w, rows)
}

// Update changes one complaint.
// PUT /api/{yarn|fabric}-complaints/{id}
func (c complaintRoutes) Update(w http.ResponseWriter, r *http.Request) {
	c.h.updateByID(w, r, c.table, "Failed to update complaint")
}

// Delete removes one complaint.
// DELETE /api/{yarn|fabric}-complaints/{id}?deleted_by=
func (c complaintRoutes) Delete(w http.ResponseWriter, r *http.Request) {
	c.h.deleteByID(w, r, c.table, c.what, "Complaint deleted")
}

// recordMarkets teaches the market master the region to market pairs the
// complaints name. Failures are logged only; the complaint is already saved.
func (c complaintRoutes) recordMarkets(r *http.Request, rows []store.Row) {
	for _, row := range rows {
		if store.Text(row["bill_to_region"]) == "" {
			continue
		}
		if err := dispatch.RecordMarket(r.Context(), c.h.Store, row["bill_to_region"], row["market"]); err != nil {
			c.h.log(r).Warn("failed to update market master",
				zap.String("ship_to_city", store.Text(row["bill_to_region"])),
				zap.Error(err))
		}
	}
}
