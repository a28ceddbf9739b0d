package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

type JobRepo interface {
	// FindOrCreate atomically inserts the record unless a row with the same
	// fingerprint already exists. Exactly one concurrent caller per
	// fingerprint observes created=true; all others receive the existing row.
	FindOrCreate(ctx context.Context, job *types.Job) (*types.Job, bool, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (*types.Job, error)
	// MarkRunning performs the submitted -> running transition. Returns false
	// when the job was not in submitted state.
	MarkRunning(ctx context.Context, uid uuid.UUID) (bool, error)
	// Complete performs running -> completed with a result payload.
	Complete(ctx context.Context, uid uuid.UUID, result datatypes.JSON) error
	// Fail performs running -> failed (or submitted -> failed for jobs that
	// never started) with a human-readable error message.
	Fail(ctx context.Context, uid uuid.UUID, message string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) FindOrCreate(ctx context.Context, job *types.Job) (*types.Job, bool, error) {
	if job == nil || job.Fingerprint == "" {
		return nil, false, pkgerrors.ErrInvalidArgument
	}
	if job.UID == uuid.Nil {
		job.UID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.StatusSubmitted
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).
		Create(job)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return job, true, nil
	}

	var existing types.Job
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", job.Fingerprint).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *jobRepo) GetByUID(ctx context.Context, uid uuid.UUID) (*types.Job, error) {
	if uid == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var job types.Job
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, uid uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&types.Job{}).
		Where("uid = ? AND status = ?", uid, types.StatusSubmitted).
		Updates(map[string]interface{}{
			"status":     types.StatusRunning,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) Complete(ctx context.Context, uid uuid.UUID, result datatypes.JSON) error {
	updates := map[string]interface{}{
		"status":     types.StatusCompleted,
		"updated_at": time.Now(),
	}
	if result != nil {
		updates["result"] = result
	}
	res := r.db.WithContext(ctx).
		Model(&types.Job{}).
		Where("uid = ? AND status = ?", uid, types.StatusRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("Complete skipped: job not in running state", "uid", uid)
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, uid uuid.UUID, message string) error {
	res := r.db.WithContext(ctx).
		Model(&types.Job{}).
		Where("uid = ? AND status IN ?", uid, []string{types.StatusSubmitted, types.StatusRunning}).
		Updates(map[string]interface{}{
			"status":     types.StatusFailed,
			"error":      message,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("Fail skipped: job already terminal", "uid", uid)
	}
	return nil
}
