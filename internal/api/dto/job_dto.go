package dto

import "github.com/cuongbtq/face-swap-service/internal/domain"

type CreateJobRequest struct {
	BaseImageURL string `json:"base_image_url" binding:"required,http_url"`
	SelfieURL    string `json:"selfie_url" binding:"required,http_url"`
}

type CreateJobResponse struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// JobResponse carries result fields only for completed jobs and the error only for failed ones
type JobResponse struct {
	ReferenceID    string  `json:"reference_id"`
	Status         string  `json:"status"`
	ResultImageURL *string `json:"result_image_url,omitempty"`
	ProcessingMS   *int64  `json:"processing_ms,omitempty"`
	Error          *string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// ReferenceID is set when the job was stored but could not be scheduled yet
	ReferenceID string `json:"reference_id,omitempty"`
}

type RootResponse struct {
	Message string `json:"message"`
	Health  string `json:"health"`
}

func NewJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ReferenceID: job.ReferenceID,
		Status:      string(job.Status),
	}

	switch job.Status {
	case domain.StatusCompleted:
		resp.ResultImageURL = job.ResultImageURL
		resp.ProcessingMS = job.ProcessingMS
	case domain.StatusFailed:
		resp.Error = job.Error
	}

	return resp
}
