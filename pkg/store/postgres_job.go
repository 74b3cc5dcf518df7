/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
	"github.com/AMD-AIG-AIMA/FLEET/pkg/types"
)

const TJob = "job"

// CreateJob inserts a new job row.
func (s *postgresStore) CreateJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if err := s.orm(ctx).Create(job).Error; err != nil {
		klog.ErrorS(err, "failed to insert job", "id", job.JobId)
		return err
	}
	return nil
}

// GetJob fetches one job by its scheduler-assigned id. Inside a
// transaction the row is locked for update.
func (s *postgresStore) GetJob(ctx context.Context, jobId string) (*types.Job, error) {
	job := &types.Job{}
	err := s.locked(s.orm(ctx)).Where("job_id = ?", jobId).First(job).Error
	if err != nil {
		return nil, s.notFound(err, "Job", jobId)
	}
	return job, nil
}

// UpdateJob writes the full job row back by primary key.
func (s *postgresStore) UpdateJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	job.UpdateTime = NullTime(time.Now().UTC())
	if err := s.orm(ctx).Save(job).Error; err != nil {
		klog.ErrorS(err, "failed to update job", "id", job.JobId)
		return err
	}
	return nil
}

// SetJobDeleted soft-deletes a job.
func (s *postgresStore) SetJobDeleted(ctx context.Context, jobId string) error {
	result := s.orm(ctx).Model(&types.Job{}).Where("job_id = ?", jobId).
		Updates(map[string]interface{}{"is_deleted": true, "update_time": time.Now().UTC()})
	if result.Error != nil {
		klog.ErrorS(result.Error, "failed to soft-delete job", "id", jobId)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return commonerrors.NewNotFound("Job", jobId)
	}
	return nil
}

// ListJobs runs a filtered select. Outside a transaction the sqlx pool
// serves the query; inside, it rides the transaction connection.
func (s *postgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*types.Job, error) {
	startTime := time.Now().UTC()
	builder := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TJob).
		Where(jobFilterQuery(filter)).
		OrderBy(jobOrderBy(filter)...)
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var jobs []*types.Job
	if s.inTx {
		err = s.gorm.Raw(sql, args...).Scan(&jobs).Error
	} else {
		defer func() {
			klog.Infof("select jobs, query: %s %v, cost (%v)", sql, args, time.Since(startTime))
		}()
		if s.cfg.RequestTimeout > 0 {
			ctx2, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
			err = s.db.Unsafe().SelectContext(ctx2, &jobs, sql, args...)
		} else {
			err = s.db.Unsafe().SelectContext(ctx, &jobs, sql, args...)
		}
	}
	return jobs, err
}

// CountJobs returns the number of jobs matching the filter.
func (s *postgresStore) CountJobs(ctx context.Context, filter JobFilter) (int, error) {
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).
		From(TJob).
		Where(jobFilterQuery(filter)).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	if s.inTx {
		err = s.gorm.Raw(sql, args...).Scan(&cnt).Error
	} else {
		err = s.db.GetContext(ctx, &cnt, sql, args...)
	}
	return cnt, err
}

// NextQueuePosition computes max(queue_position)+1 over the queue's
// live jobs. Callers must hold the queue row lock so two concurrent
// enqueues cannot observe the same maximum.
func (s *postgresStore) NextQueuePosition(ctx context.Context, queueId string) (int, error) {
	sql, args, err := sqrl.Select("COALESCE(MAX(queue_position), 0) + 1").PlaceholderFormat(sqrl.Dollar).
		From(TJob).
		Where(sqrl.And{
			sqrl.Eq{"queue_id": queueId},
			sqrl.Eq{"is_deleted": false},
			sqrl.Eq{"status": activeStatuses()},
		}).ToSql()
	if err != nil {
		return 0, err
	}
	var position int
	if s.inTx {
		err = s.gorm.Raw(sql, args...).Scan(&position).Error
	} else {
		err = s.db.GetContext(ctx, &position, sql, args...)
	}
	return position, err
}

func jobFilterQuery(filter JobFilter) sqrl.Sqlizer {
	query := sqrl.And{}
	if !filter.IncludeDeleted {
		query = append(query, sqrl.Eq{"is_deleted": false})
	}
	if filter.ProjectId != "" {
		query = append(query, sqrl.Eq{"project_id": filter.ProjectId})
	}
	if filter.UserId != "" {
		query = append(query, sqrl.Eq{"user_id": filter.UserId})
	}
	if filter.QueueId != "" {
		query = append(query, sqrl.Eq{"queue_id": filter.QueueId})
	}
	if filter.VdcId != "" {
		query = append(query, sqrl.Eq{"vdc_id": filter.VdcId})
	}
	if filter.ClusterId != "" {
		query = append(query, sqrl.Eq{"cluster_id": filter.ClusterId})
	}
	if filter.Executor != "" {
		query = append(query, sqrl.Eq{"executor": filter.Executor})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = append(query, sqrl.Eq{"status": statuses})
	}
	if !filter.FinishedBefore.IsZero() {
		query = append(query, sqrl.Lt{"finished_at": filter.FinishedBefore})
	}
	return query
}

func jobOrderBy(filter JobFilter) []string {
	if len(filter.OrderBy) > 0 {
		return filter.OrderBy
	}
	return []string{"creation_time desc"}
}

func activeStatuses() []string {
	return []string{
		string(types.JobPending),
		string(types.JobQueued),
		string(types.JobRunning),
	}
}
