package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cuongbtq/face-swap-service/internal/api/dto"
	"github.com/cuongbtq/face-swap-service/internal/ingest"
	"github.com/gin-gonic/gin"
)

const acceptedMessage = "Face-swap job accepted"

// CreateJob handles POST /api/v1/face-swap/jobs
// Downloads both images and schedules the swap; processing happens in the background
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid request body: base_image_url and selfie_url must be http(s) URLs",
		})
		return
	}

	job, err := h.controller.Submit(c.Request.Context(), req.BaseImageURL, req.SelfieURL)
	if err != nil {
		status := submitErrorStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			message = "Failed to create job"
		}
		resp := dto.ErrorResponse{Error: message}
		if job != nil {
			resp.ReferenceID = job.ReferenceID
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		ReferenceID: job.ReferenceID,
		Status:      string(job.Status),
		Message:     acceptedMessage,
	})
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidURL),
		errors.Is(err, ingest.ErrDownloadFailed),
		errors.Is(err, ingest.ErrNotAnImage):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrDispatchFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetJob handles GET /api/v1/face-swap/jobs/:reference_id
func (h *JobHandler) GetJob(c *gin.Context) {
	referenceID := c.Param("reference_id")

	job, found, err := h.store.Get(c.Request.Context(), referenceID)
	if err != nil {
		h.logger.Error("Failed to get job",
			slog.String("reference_id", referenceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "reference_id not found"})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponse(job))
}

// ServeOutput handles GET /static/output/:filename
func (h *JobHandler) ServeOutput(c *gin.Context) {
	filename := c.Param("filename")

	// only plain names inside the output directory
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "file not found"})
		return
	}

	path := filepath.Join(h.outputDir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "file not found"})
		return
	}

	c.Header("Content-Type", "image/png")
	c.File(path)
}

// Root handles GET /
func (h *JobHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, dto.RootResponse{
		Message: "Face-Swap Service is running!",
		Health:  "ok",
	})
}
