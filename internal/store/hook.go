package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
)

// logHook reports every statement bun runs at debug level, and failed
// statements as warnings.
type logHook struct {
	log logrus.FieldLogger
}

var _ bun.QueryHook = (*logHook)(nil)

func (h *logHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *logHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	entry := h.log.WithFields(logrus.Fields{
		"operation": event.Operation(),
		"elapsed":   time.Since(event.StartTime).Round(time.Microsecond),
	})
	switch {
	case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows):
		entry.WithField("sql", event.Query).Debug("statement executed")
	default:
		entry.WithError(event.Err).WithField("sql", event.Query).Warn("statement failed")
	}
}
