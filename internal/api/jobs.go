package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/encodenode/internal/api/models"
	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/jobs"
	"github.com/smazurov/encodenode/internal/process"
)

func jobData(snap jobs.Snapshot) models.JobData {
	job, info := snap.Job, snap.Session
	return models.JobData{
		ID:               job.ID,
		Input:            job.Input,
		Output:           job.Output,
		Encoder:          job.Config.Video.Name,
		Family:           string(job.Config.Video.Family),
		Command:          job.Command,
		State:            string(info.State),
		PID:              info.PID,
		Duration:         job.Duration,
		DurationFallback: job.DurationFallback,
		Progress: models.ProgressData{
			Elapsed:   info.Progress.Elapsed,
			Speed:     info.Progress.Speed,
			SizeKiB:   info.Progress.SizeKiB,
			Size:      bitrate.FormatSize(info.Progress.SizeKiB),
			Percent:   info.Progress.Percent,
			Remaining: snap.Remaining,
		},
		ExitCode:       info.ExitCode,
		Error:          info.LastError,
		PreviewEnabled: job.Preview != "",
		PreviewReady:   snap.PreviewReady,
		CreatedAt:      job.CreatedAt,
		StartedAt:      info.StartedAt,
		EndedAt:        info.EndedAt,
	}
}

// registerJobRoutes registers job lifecycle endpoints.
func (s *Server) registerJobRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/api/jobs",
		Summary:       "Create Job",
		Description:   "Compile the encode settings, run preflight checks and start the engine. A job whose engine could not be spawned is returned in the failed state.",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusCreated,
		Security:      withAuth(),
		Errors:        []int{400, 401, 422, 500},
	}, func(ctx context.Context, input *models.JobRequest) (*models.JobResponse, error) {
		params := createParams(input.Body.EncodeSettings)
		params.Input = input.Body.Input
		params.Output = input.Body.Output
		params.Preview = input.Body.Preview

		snap, err := s.jobs.Create(ctx, params)
		if err != nil {
			var spawnErr *process.SpawnError
			if errors.As(err, &spawnErr) && snap.Job.ID != "" {
				s.logger.Warn("Job failed to spawn", "job_id", snap.Job.ID, "error", err)
				return &models.JobResponse{Body: jobData(snap)}, nil
			}
			return nil, s.toHTTPError(err, "Failed to create job")
		}
		return &models.JobResponse{Body: jobData(snap)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/jobs",
		Summary:     "List Jobs",
		Description: "List active jobs and retained finished jobs",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.JobListResponse, error) {
		snaps := s.jobs.List()
		data := models.JobListData{Jobs: make([]models.JobData, 0, len(snaps))}
		for _, snap := range snaps {
			data.Jobs = append(data.Jobs, jobData(snap))
		}
		data.Count = len(data.Jobs)
		return &models.JobListResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/jobs/{id}",
		Summary:     "Get Job",
		Description: "Get the state and progress of one job",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.JobIDInput) (*models.JobResponse, error) {
		snap, err := s.jobs.Get(input.ID)
		if err != nil {
			return nil, s.toHTTPError(err, "Failed to get job")
		}
		return &models.JobResponse{Body: jobData(snap)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-job",
		Method:        http.MethodDelete,
		Path:          "/api/jobs/{id}",
		Summary:       "Delete Job",
		Description:   "Stop the job if it is active and forget it. The encoded output is kept.",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusNoContent,
		Security:      withAuth(),
		Errors:        []int{401, 404},
	}, func(_ context.Context, input *models.JobIDInput) (*struct{}, error) {
		if err := s.jobs.Delete(input.ID); err != nil {
			return nil, s.toHTTPError(err, "Failed to delete job")
		}
		return nil, nil
	})

	s.registerControl("pause-job", "pause", "Pause Job", "Suspend a running engine. A no-op in any other state.", s.jobs.Pause)
	s.registerControl("resume-job", "resume", "Resume Job", "Continue a paused engine. A no-op in any other state.", s.jobs.Resume)
	s.registerControl("stop-job", "stop", "Stop Job", "Cancel the job and wait for the engine to exit", s.jobs.Stop)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-job-preview",
		Method:      http.MethodGet,
		Path:        "/api/jobs/{id}/preview",
		Summary:     "Job Preview",
		Description: "Latest complete preview frame of a job started with preview enabled",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG frame",
				Content: map[string]*huma.MediaType{
					"image/jpeg": {},
				},
			},
		},
	}, func(_ context.Context, input *models.JobIDInput) (*models.PreviewResponse, error) {
		frame, err := s.jobs.Preview(input.ID)
		if err != nil {
			return nil, s.toHTTPError(err, "Failed to get preview")
		}
		return &models.PreviewResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			LastModified: frame.UpdatedAt.UTC().Format(http.TimeFormat),
			Body:         frame.Data,
		}, nil
	})
}

func (s *Server) registerControl(opID, action, summary, description string, op func(string) (jobs.Snapshot, error)) {
	huma.Register(s.api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/api/jobs/{id}/" + action,
		Summary:     summary,
		Description: description,
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.JobIDInput) (*models.JobResponse, error) {
		start := time.Now()
		snap, err := op(input.ID)
		if err != nil {
			return nil, s.toHTTPError(err, "Failed to "+action+" job")
		}
		s.logger.Debug("Job control applied", "job_id", input.ID, "action", action, "state", snap.Session.State, "duration", time.Since(start))
		return &models.JobResponse{Body: jobData(snap)}, nil
	})
}
