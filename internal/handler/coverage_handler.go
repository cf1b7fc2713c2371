package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/service"
	"github.com/jengzang/svi-coverage-go/pkg/response"
)

// CoverageHandler handles HTTP requests for grid coverage results
type CoverageHandler struct {
	service *service.CoverageService
}

// NewCoverageHandler creates a new coverage handler
func NewCoverageHandler(service *service.CoverageService) *CoverageHandler {
	return &CoverageHandler{service: service}
}

// ListCells handles GET /api/v1/grid-cells
func (h *CoverageHandler) ListCells(c *gin.Context) {
	var filter models.CoverageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	cells, err := h.service.ListCells(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to get grid cells", err)
		return
	}

	response.Success(c, gin.H{
		"cells": cells,
		"count": len(cells),
	})
}

// GetCell handles GET /api/v1/grid-cells/:id
func (h *CoverageHandler) GetCell(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		response.BadRequest(c, "Invalid grid cell ID")
		return
	}

	cell, err := h.service.GetCell(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get grid cell", err)
		return
	}

	response.Success(c, cell)
}

// GetReport handles GET /api/v1/coverage/report
func (h *CoverageHandler) GetReport(c *gin.Context) {
	report, err := h.service.Report(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to build coverage report", err)
		return
	}

	response.Success(c, report)
}

// ListRuns handles GET /api/v1/runs
func (h *CoverageHandler) ListRuns(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(c.Request.Context(), c.Query("step"), limit)
	if err != nil {
		h.fail(c, "Failed to list runs", err)
		return
	}

	response.Success(c, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/v1/runs/:id
func (h *CoverageHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get run", err)
		return
	}

	response.Success(c, run)
}

// fail maps service errors onto HTTP status codes
func (h *CoverageHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidFilter):
		response.BadRequest(c, err.Error())
	default:
		log.Printf("[API] %s: %v", message, err)
		response.InternalError(c, message)
	}
}
