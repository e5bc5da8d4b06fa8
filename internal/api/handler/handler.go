package handler

import (
	"log/slog"

	"github.com/cuongbtq/face-swap-service/internal/ingest"
	"github.com/cuongbtq/face-swap-service/internal/storage"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Controller *ingest.Controller
	Store      storage.Store
	OutputDir  string
}

// JobHandler handles face-swap job HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	controller *ingest.Controller
	store      storage.Store
	outputDir  string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		controller: deps.Controller,
		store:      deps.Store,
		outputDir:  deps.OutputDir,
	}
}
