package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cuongbtq/face-swap-service/internal/api/dto"
	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/cuongbtq/face-swap-service/internal/ingest"
	"github.com/stretchr/testify/assert"
)

func TestSubmitErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid url", &ingest.ImageError{URL: "ftp://x", Err: ingest.ErrInvalidURL}, http.StatusBadRequest},
		{"download failed", &ingest.ImageError{URL: "http://x", Err: ingest.ErrDownloadFailed}, http.StatusBadRequest},
		{"not an image", &ingest.ImageError{URL: "http://x", Err: ingest.ErrNotAnImage}, http.StatusBadRequest},
		{"dispatch failed", fmt.Errorf("%w: channel closed", ingest.ErrDispatchFailed), http.StatusServiceUnavailable},
		{"store failure", errors.New("failed to create job: disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, submitErrorStatus(tt.err))
		})
	}
}

func TestNewJobResponse(t *testing.T) {
	url := "/static/output/job_1.png"
	ms := int64(120)
	reason := "no_face_detected_in_base"

	tests := []struct {
		name       string
		job        *domain.Job
		wantResult bool
		wantError  bool
	}{
		{
			name: "pending",
			job:  &domain.Job{ReferenceID: "job_1", Status: domain.StatusPending},
		},
		{
			name: "processing",
			job:  &domain.Job{ReferenceID: "job_1", Status: domain.StatusProcessing},
		},
		{
			name:       "completed",
			job:        &domain.Job{ReferenceID: "job_1", Status: domain.StatusCompleted, ResultImageURL: &url, ProcessingMS: &ms},
			wantResult: true,
		},
		{
			name:      "failed",
			job:       &domain.Job{ReferenceID: "job_1", Status: domain.StatusFailed, Error: &reason},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dto.NewJobResponse(tt.job)

			assert.Equal(t, "job_1", resp.ReferenceID)
			assert.Equal(t, string(tt.job.Status), resp.Status)
			if tt.wantResult {
				assert.Equal(t, url, *resp.ResultImageURL)
				assert.Equal(t, ms, *resp.ProcessingMS)
			} else {
				assert.Nil(t, resp.ResultImageURL)
				assert.Nil(t, resp.ProcessingMS)
			}
			if tt.wantError {
				assert.Equal(t, reason, *resp.Error)
			} else {
				assert.Nil(t, resp.Error)
			}
		})
	}
}
