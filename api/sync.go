/*
sync.go - Streamed master-data sync

PURPOSE:
  POST /api/sync-master-data runs the reconciler and streams its events as
  newline-delimited JSON, one object per line, flushed as they happen:

    {"type":"start","runId":"...","total":32}
    {"type":"progress","stage":"count","completed":15,"total":32,"percent":47}
    ...
    {"type":"complete","message":"...","status":"ok","completed":32,"total":32}

  A failed run ends with {"type":"error",...} instead. The status code is
  always 200 since headers are sent before the run starts.

CANCELLATION:
  The run is detached from the request context. A client that goes away
  only loses the stream; the sync finishes and is logged.

SEE ALSO:
  - dispatch/reconcile.go: The reconciler
  - dispatch/event.go: Event wire shapes
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/millops/dispatch"
)

// SyncMasterData runs a master-data sync and streams its progress.
// POST /api/sync-master-data
func (h *Handler) SyncMasterData(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	rc := http.NewResponseController(w)
	// The server write timeout would cut long syncs short.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("cannot clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	gone := false
	emit := func(e dispatch.Event) {
		if gone {
			return
		}
		if err := enc.Encode(e); err != nil {
			gone = true
			log.Warn("sync client went away, continuing without stream", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			gone = true
		}
	}

	out := h.Reconciler.Run(context.WithoutCancel(r.Context()), emit)
	log.Info("master data sync finished",
		zap.String("run_id", out.RunID),
		zap.String("status", string(out.Status)),
		zap.Int("completed", out.Completed),
		zap.Int("total", out.Total),
		zap.Int("failed", len(out.Failed)))
}
