package v1

import (
	"net/http"
	"strconv"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type ApplicationHandler struct {
	applicationUC domain.ApplicationUsecase
}

// NewApplicationHandler registers application routes. applyLimit guards submission.
func NewApplicationHandler(r *gin.RouterGroup, applicationUC domain.ApplicationUsecase, applyLimit gin.HandlerFunc) {
	handler := &ApplicationHandler{applicationUC: applicationUC}

	applications := r.Group("/applications")
	{
		applications.POST("", applyLimit, handler.Apply)
		applications.GET("/:id", handler.GetDetail)
		applications.GET("/job/:jobId", handler.ListByJob)
		applications.GET("/worker/:workerId", handler.ListByWorker)
		applications.PUT("/:id/status", handler.UpdateStatus)
	}
}

// ApplyRequest is the request payload for applying to a job
type ApplyRequest struct {
	JobID       int64  `json:"jobId" binding:"required"`
	WorkerID    int64  `json:"workerId"`
	WorkerName  string `json:"workerName"`
	WorkerSkill string `json:"workerSkill"`
}

// Apply godoc
// @Summary      Apply to a job
// @Description  Submit an application as the authenticated worker. A second application to the same job returns 409 DUPLICATE_APPLICATION.
// @Tags         applications
// @Accept       json
// @Produce      json
// @Param        body  body      ApplyRequest  true  "Application data"
// @Success      201   {object}  response.Response{data=domain.Application}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /applications [post]
// @Security     BearerAuth
func (h *ApplicationHandler) Apply(c *gin.Context) {
	userID, role := actor(c)
	if role != domain.RoleWorker {
		c.Error(apperror.Forbidden("Only workers can apply to jobs"))
		return
	}

	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}
	if req.WorkerID != 0 && req.WorkerID != userID {
		c.Error(apperror.Forbidden("You can only apply as yourself"))
		return
	}

	app, err := h.applicationUC.Apply(c.Request.Context(), domain.ApplyInput{
		JobID:       req.JobID,
		WorkerID:    userID,
		WorkerName:  req.WorkerName,
		WorkerSkill: req.WorkerSkill,
	})
	if err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusCreated, "Application submitted", app)
}

// ListByWorker godoc
// @Summary      List a worker's applications
// @Description  Applications of the calling worker, with the job's title, location, pay and duration when the job still exists
// @Tags         applications
// @Produce      json
// @Param        workerId  path      int  true  "Worker ID"
// @Success      200       {object}  response.Response{data=[]domain.Application}
// @Failure      403       {object}  response.Response
// @Router       /applications/worker/{workerId} [get]
// @Security     BearerAuth
func (h *ApplicationHandler) ListByWorker(c *gin.Context) {
	workerID, err := pathID(c, "workerId")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	apps, err := h.applicationUC.ListByWorker(c.Request.Context(), userID, workerID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Applications retrieved", apps)
}

// ListByJob godoc
// @Summary      List a job's applications
// @Description  Owner of the job only
// @Tags         applications
// @Produce      json
// @Param        jobId  path      int  true  "Job ID"
// @Success      200    {object}  response.Response{data=[]domain.Application}
// @Failure      403    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /applications/job/{jobId} [get]
// @Security     BearerAuth
func (h *ApplicationHandler) ListByJob(c *gin.Context) {
	jobID, err := pathID(c, "jobId")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	apps, err := h.applicationUC.ListByJob(c.Request.Context(), userID, jobID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Applications retrieved", apps)
}

// GetDetail godoc
// @Summary      Get application
// @Description  Visible to the applicant and the job's owner
// @Tags         applications
// @Produce      json
// @Param        id   path      int  true  "Application ID"
// @Success      200  {object}  response.Response{data=domain.Application}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /applications/{id} [get]
// @Security     BearerAuth
func (h *ApplicationHandler) GetDetail(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	app, err := h.applicationUC.GetApplication(c.Request.Context(), userID, id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Application retrieved", app)
}

// UpdateStatus godoc
// @Summary      Change application status
// @Description  Accept or reject an application. Accepting rejects the job's other pending applications. Accepting while another worker is accepted needs supersede=true.
// @Tags         applications
// @Produce      json
// @Param        id         path      int     true   "Application ID"
// @Param        status     query     string  true   "PENDING | ACCEPTED | REJECTED"
// @Param        supersede  query     bool    false  "Replace the currently accepted worker"
// @Success      200        {object}  response.Response{data=domain.StatusChange}
// @Failure      400        {object}  response.Response
// @Failure      403        {object}  response.Response
// @Failure      409        {object}  response.Response
// @Router       /applications/{id}/status [put]
// @Security     BearerAuth
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	status := c.Query("status")
	if status == "" {
		c.Error(apperror.BadRequest("status query parameter is required"))
		return
	}
	supersede := false
	if raw := c.Query("supersede"); raw != "" {
		supersede, err = strconv.ParseBool(raw)
		if err != nil {
			c.Error(apperror.BadRequest("supersede must be true or false"))
			return
		}
	}

	userID, _ := actor(c)
	change, err := h.applicationUC.SetStatus(c.Request.Context(), userID, id, status, supersede)
	if err != nil {
		c.Error(err)
		return
	}

	message := "Application status updated"
	if len(change.CascadeFailures) > 0 {
		message = "Application accepted; some pending applications could not be rejected"
	}
	response.Success(c, http.StatusOK, message, change)
}
