package domain

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a face-swap job
type Status string

// Job status constants
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job represents one face-swap request and its tracked state
type Job struct {
	ReferenceID     string    `json:"reference_id"`
	Status          Status    `json:"status"`
	BaseImagePath   string    `json:"base_image_path"`
	SelfieImagePath string    `json:"selfie_image_path"`
	ResultImageURL  *string   `json:"result_image_url,omitempty"`
	Error           *string   `json:"error,omitempty"`
	ProcessingMS    *int64    `json:"processing_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewJob creates a pending job for the two downloaded input images
func NewJob(referenceID, baseImagePath, selfieImagePath string) *Job {
	now := time.Now().UTC()
	return &Job{
		ReferenceID:     referenceID,
		Status:          StatusPending,
		BaseImagePath:   baseImagePath,
		SelfieImagePath: selfieImagePath,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate checks the invariants a freshly created job must hold
func (j *Job) Validate() error {
	if j.ReferenceID == "" {
		return errors.New("reference_id is required")
	}
	if j.BaseImagePath == "" || j.SelfieImagePath == "" {
		return errors.New("input image paths are required")
	}
	if j.Status != StatusPending {
		return errors.New("new job must be pending")
	}
	if j.ResultImageURL != nil || j.Error != nil || j.ProcessingMS != nil {
		return errors.New("new job must not carry result fields")
	}
	return nil
}

// Clone returns a deep copy so callers never share pointers with a store
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.ResultImageURL = cloneString(j.ResultImageURL)
	out.Error = cloneString(j.Error)
	if j.ProcessingMS != nil {
		ms := *j.ProcessingMS
		out.ProcessingMS = &ms
	}
	return &out
}

// JobPatch is a partial update. Nil fields are left untouched.
type JobPatch struct {
	Status         *Status
	ResultImageURL *string
	Error          *string
	ProcessingMS   *int64
}

// Apply merges the patch into the job. The caller is responsible for locking.
func (p JobPatch) Apply(j *Job, now time.Time) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.ResultImageURL != nil {
		j.ResultImageURL = cloneString(p.ResultImageURL)
	}
	if p.Error != nil {
		j.Error = cloneString(p.Error)
	}
	if p.ProcessingMS != nil {
		ms := *p.ProcessingMS
		j.ProcessingMS = &ms
	}
	j.UpdatedAt = now
}

// ProcessingPatch moves a job into processing
func ProcessingPatch() JobPatch {
	s := StatusProcessing
	return JobPatch{Status: &s}
}

// CompletedPatch records a successful composition
func CompletedPatch(resultImageURL string, processingMS int64) JobPatch {
	s := StatusCompleted
	if processingMS < 0 {
		processingMS = 0
	}
	return JobPatch{Status: &s, ResultImageURL: &resultImageURL, ProcessingMS: &processingMS}
}

// FailedPatch records a failed composition with a short reason
func FailedPatch(reason string) JobPatch {
	s := StatusFailed
	return JobPatch{Status: &s, Error: &reason}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
