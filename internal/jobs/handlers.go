package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

const (
	JobTypeSweepExpiredIntents JobType = "sweep_expired_intents"
	JobTypeMigrateToR2Batch    JobType = "migrate_to_r2_batch"
)

type JobType string

// migrateBatchPayload bounds how many versions one migrateAllToR2 tick
// backfills, so a large catalog doesn't block the worker on a single task.
type migrateBatchPayload struct {
	BatchSize int `json:"batch_size"`
}

func NewSweepExpiredIntentsTask() *asynq.Task {
	return asynq.NewTask(string(JobTypeSweepExpiredIntents), nil)
}

func NewMigrateToR2BatchTask(batchSize int) (*asynq.Task, error) {
	payload, err := json.Marshal(migrateBatchPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(string(JobTypeMigrateToR2Batch), payload), nil
}

// Handlers processes the two background jobs this system runs. Both are
// best-effort: a failed tick is simply retried by asynq on the next
// schedule.
type Handlers struct {
	catalog  *catalog.Repository
	backends *storage.Registry
	logger   *logrus.Logger
}

func NewHandlers(cat *catalog.Repository, backends *storage.Registry) *Handlers {
	return &Handlers{catalog: cat, backends: backends, logger: logrus.StandardLogger()}
}

// Mux wires every handler this package defines against its job type.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(string(JobTypeSweepExpiredIntents), h.HandleSweepExpiredIntents)
	mux.HandleFunc(string(JobTypeMigrateToR2Batch), h.HandleMigrateToR2Batch)
	return mux
}

// HandleSweepExpiredIntents reclaims upload intents past their TTL.
// Reclamation is best-effort and TTL-based.
func (h *Handlers) HandleSweepExpiredIntents(ctx context.Context, task *asynq.Task) error {
	n, err := h.catalog.SweepExpiredIntents(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired intents: %w", err)
	}
	if n > 0 {
		h.logger.WithField("swept", n).Info("reclaimed expired upload intents")
	}
	return nil
}

// HandleMigrateToR2Batch backfills a batch of convex-only versions to r2.
// It is a no-op once r2 isn't configured or every version already has an
// r2 half to its locator.
func (h *Handlers) HandleMigrateToR2Batch(ctx context.Context, task *asynq.Task) error {
	if !h.backends.HasR2() {
		return nil
	}

	var payload migrateBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = 50
	}

	versions, err := h.catalog.ListVersionsMissingR2(ctx, payload.BatchSize)
	if err != nil {
		return fmt.Errorf("list versions missing r2: %w", err)
	}

	for _, v := range versions {
		newLoc, err := h.backends.MigrateVersionToR2(ctx, v.Locator, v.AssetID, v.Version, v.OriginalFilename, v.ContentType, v.Size)
		if err != nil {
			h.logger.WithFields(logrus.Fields{
				"version_id": v.ID.String(),
				"error":      err,
			}).Warn("failed to migrate version to r2, will retry next batch")
			continue
		}
		if err := h.catalog.SetVersionLocator(ctx, v.ID, newLoc); err != nil {
			return fmt.Errorf("persist migrated locator for version %s: %w", v.ID.String(), err)
		}
	}

	h.logger.WithField("migrated", len(versions)).Info("migrateAllToR2 batch complete")
	return nil
}
