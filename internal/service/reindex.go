package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/pkg/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultBatchSize    = 50
	DefaultReindexPause = 100 * time.Millisecond

	initialSetupOption = "initial_setup_completed"
)

var DefaultContentTypes = []string{"post", "page"}

type ReindexOptions struct {
	BatchSize    int      `validate:"min=1,max=1000" json:"batch_size"`
	ContentTypes []string `validate:"omitempty,dive,required" json:"content_types"`
}

type ReindexResult struct {
	Processed int   `json:"processed"`
	Batches   int   `json:"batches"`
	Found     int   `json:"attachments_found"`
	Updated   int   `json:"attachments_updated"`
	Timestamp int64 `json:"timestamp"`
}

// Reindexer rebuilds the reference index over every stored content record
type Reindexer struct {
	DB      *gorm.DB
	Tracker *Tracker
	// Pause is slept after every full batch
	Pause time.Duration
}

func NewReindexer(db *gorm.DB, t *Tracker, pause time.Duration) *Reindexer {
	return &Reindexer{DB: db, Tracker: t, Pause: pause}
}

// Run walks content in ascending id order, batch by batch, stopping at the
// first short batch
func (r *Reindexer) Run(ctx context.Context, opts ReindexOptions) (*ReindexResult, error) {
	if err := validators.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrInvalidBatchSize, err)
	}

	if len(opts.ContentTypes) == 0 {
		opts.ContentTypes = DefaultContentTypes
	}

	start := time.Now()
	defer func() { reindexDuration.Observe(time.Since(start).Seconds()) }()

	query := func() *gorm.DB {
		return r.DB.WithContext(ctx).
			Model(&model.Content{}).
			Where("type IN ? AND body <> ?", opts.ContentTypes, "")
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count content, %w", err)
	}

	zap.L().Info("Starting reindex", zap.Int64("total", total), zap.Int("batch_size", opts.BatchSize))

	res := &ReindexResult{}

	for offset := 0; ; offset += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var batch []model.Content
		err := query().
			Order("id asc").
			Limit(opts.BatchSize).
			Offset(offset).
			Find(&batch).
			Error
		if err != nil {
			return res, fmt.Errorf("failed to load content batch at offset %d, %w", offset, err)
		}

		if len(batch) == 0 {
			break
		}

		res.Batches++

		for i := range batch {
			added, removed, err := r.Tracker.IndexContent(ctx, &batch[i])
			if err != nil {
				zap.L().Error("Failed to index content", zap.Uint("content_id", batch[i].ID), zap.Error(err))
				continue
			}

			res.Processed++
			res.Found += len(batch[i].References)
			res.Updated += added + removed
			reindexProcessedTotal.Inc()
		}

		zap.L().Debug("Reindexed batch", zap.Int("batch", res.Batches), zap.Int("size", len(batch)))

		if len(batch) < opts.BatchSize {
			break
		}

		if r.Pause > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(r.Pause):
			}
		}
	}

	res.Timestamp = time.Now().Unix()

	zap.L().Info("Reindex finished",
		zap.Int("processed", res.Processed),
		zap.Int("batches", res.Batches),
		zap.Int("attachments_found", res.Found),
		zap.Int("attachments_updated", res.Updated),
	)

	return res, nil
}

// RunInitialSetup reindexes once per installation and records the result
func (r *Reindexer) RunInitialSetup(ctx context.Context, opts ReindexOptions) (*ReindexResult, bool, error) {
	var opt model.Option
	err := r.DB.WithContext(ctx).Where("name = ?", initialSetupOption).First(&opt).Error
	if err == nil {
		return nil, false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to read setup state, %w", err)
	}

	res, err := r.Run(ctx, opts)
	if err != nil {
		return nil, false, err
	}

	b, _ := json.Marshal(res)

	err = r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model.Option{Name: initialSetupOption, Value: string(b)}).
		Error
	if err != nil {
		return res, true, fmt.Errorf("failed to record setup state, %w", err)
	}

	return res, true, nil
}

// ReindexSchedule periodically rebuilds the reference index
func ReindexSchedule(t time.Duration, r *Reindexer, opts ReindexOptions) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Reindex schedule attached", zap.Duration("tick_every", t))

	go func() {
		for range ticker.C {
			if _, err := r.Run(context.Background(), opts); err != nil {
				zap.L().Error("Scheduled reindex failed", zap.Error(err))
			}
		}
	}()
}
