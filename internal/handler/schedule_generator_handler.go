package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler-api/internal/dto"
	"github.com/noah-isme/lesson-scheduler-api/internal/middleware"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
	"github.com/noah-isme/lesson-scheduler-api/pkg/response"
)

const maxRosterUpload = 2 << 20

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error)
	GenerateFromCSV(ctx context.Context, students io.Reader, recurring io.Reader, blocked []models.Slot, title string) (*dto.GenerateScheduleResponse, error)
	Validate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.ValidateScheduleResponse, error)
	Enqueue(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateJobResponse, error)
	JobStatus(ctx context.Context, id string) (*dto.GenerateJobStatus, error)
	Proposal(ctx context.Context, id string) (*dto.GenerateScheduleResponse, error)
	Export(ctx context.Context, id string, query dto.ExportQuery) (*service.ExportedFile, error)
	Save(ctx context.Context, req dto.SaveScheduleRequest, actor string) (*dto.SaveScheduleResponse, error)
	Publish(ctx context.Context, runID string) error
	List(ctx context.Context, query dto.ScheduleRunQuery) ([]models.ScheduleRun, error)
	GetClasses(ctx context.Context, runID string) ([]models.ScheduleRunClass, error)
	Delete(ctx context.Context, runID string) error
	PurgeResultCache(ctx context.Context) (int, error)
}

// ScheduleGeneratorHandler exposes lesson scheduling endpoints.
type ScheduleGeneratorHandler struct {
	service scheduleGenerator
}

// NewScheduleGeneratorHandler constructs the handler.
func NewScheduleGeneratorHandler(svc *service.ScheduleGeneratorService) *ScheduleGeneratorHandler {
	return &ScheduleGeneratorHandler{service: svc}
}

// Generate godoc
// @Summary Generate a weekly lesson schedule proposal
// @Description Runs skeleton validation and the progressive solver synchronously. Meta reports cache_hit and the winning phase.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Roster, recurring classes and blocked slots"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/generator [post]
func (h *ScheduleGeneratorHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondProposal(c, result)
}

// GenerateCSV godoc
// @Summary Generate a schedule proposal from CSV files
// @Description Accepts a students roster file and an optional recurring classes file. Blocked slots use the "monday 12:00-13:00" form.
// @Tags Scheduler
// @Accept multipart/form-data
// @Produce json
// @Param students formData file true "Students CSV"
// @Param recurring formData file false "Recurring classes CSV"
// @Param blocked formData []string false "Blocked slots" collectionFormat(multi)
// @Param title formData string false "Schedule title"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/generator/csv [post]
func (h *ScheduleGeneratorHandler) GenerateCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRosterUpload)

	students, err := c.FormFile("students")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "students file is required"))
		return
	}
	studentFile, err := students.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read students file"))
		return
	}
	defer studentFile.Close()

	var recurring io.Reader
	if header, err := c.FormFile("recurring"); err == nil {
		var recurringFile multipart.File
		recurringFile, err = header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read recurring file"))
			return
		}
		defer recurringFile.Close()
		recurring = recurringFile
	}

	blocked, err := parseBlockedSlots(c.PostFormArray("blocked"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.GenerateFromCSV(c.Request.Context(), studentFile, recurring, blocked, c.PostForm("title"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondProposal(c, result)
}

// Validate godoc
// @Summary Validate recurring classes without solving
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Roster and recurring classes"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/generator/validate [post]
func (h *ScheduleGeneratorHandler) Validate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validate payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Enqueue godoc
// @Summary Queue a schedule generation job
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generate schedule payload"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/generator/jobs [post]
func (h *ScheduleGeneratorHandler) Enqueue(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	job, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Job godoc
// @Summary Get the state of a generation job
// @Tags Scheduler
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/generator/jobs/{id} [get]
func (h *ScheduleGeneratorHandler) Job(c *gin.Context) {
	status, err := h.service.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Proposal godoc
// @Summary Get a stored proposal
// @Tags Scheduler
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/proposals/{id} [get]
func (h *ScheduleGeneratorHandler) Proposal(c *gin.Context) {
	result, err := h.service.Proposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Download a proposal
// @Tags Scheduler
// @Produce application/json,text/markdown,text/csv,application/pdf
// @Param id path string true "Proposal ID"
// @Param format query string false "json, markdown, csv or pdf"
// @Param part query string false "schedule or unplaced (csv only)"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /schedules/proposals/{id}/export [get]
func (h *ScheduleGeneratorHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// Save godoc
// @Summary Save a proposal as a versioned schedule run
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.SaveScheduleRequest true "Save schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/save [post]
func (h *ScheduleGeneratorHandler) Save(c *gin.Context) {
	var req dto.SaveScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	saved, err := h.service.Save(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// List godoc
// @Summary List saved schedule runs
// @Tags Scheduler
// @Produce json
// @Param label query string false "Run label"
// @Success 200 {object} response.Envelope
// @Router /schedules/runs [get]
func (h *ScheduleGeneratorHandler) List(c *gin.Context) {
	var query dto.ScheduleRunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	runs, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// Classes godoc
// @Summary Get the classes of a saved run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Schedule run ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/runs/{id}/classes [get]
func (h *ScheduleGeneratorHandler) Classes(c *gin.Context) {
	classes, err := h.service.GetClasses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Publish godoc
// @Summary Publish a draft schedule run
// @Description Archives the previously published run of the same label.
// @Tags Scheduler
// @Param id path string true "Schedule run ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /schedules/runs/{id}/publish [post]
func (h *ScheduleGeneratorHandler) Publish(c *gin.Context) {
	if err := h.service.Publish(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a draft schedule run
// @Tags Scheduler
// @Param id path string true "Schedule run ID"
// @Success 204
// @Router /schedules/runs/{id} [delete]
func (h *ScheduleGeneratorHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PurgeCache godoc
// @Summary Drop every cached schedule result
// @Tags Scheduler
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/cache [delete]
func (h *ScheduleGeneratorHandler) PurgeCache(c *gin.Context) {
	removed, err := h.service.PurgeResultCache(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}

func (h *ScheduleGeneratorHandler) respondProposal(c *gin.Context, result *dto.GenerateScheduleResponse) {
	middleware.SetCacheHit(c, result.Cached)
	if result.Result != nil {
		if phase, ok := result.Result.Metadata["phase"]; ok {
			middleware.SetMeta(c, "phase", phase)
		}
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

func parseBlockedSlots(values []string) ([]models.Slot, error) {
	var blocked []models.Slot
	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			slot, err := models.ParseSlot(raw)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid blocked slot "+raw)
			}
			blocked = append(blocked, slot)
		}
	}
	return blocked, nil
}
