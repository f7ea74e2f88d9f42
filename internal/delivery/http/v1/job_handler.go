package v1

import (
	"net/http"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	jobUC domain.JobUsecase
}

func NewJobHandler(public *gin.RouterGroup, protected *gin.RouterGroup, jobUC domain.JobUsecase) {
	handler := &JobHandler{jobUC: jobUC}

	// PUBLIC routes - browsing needs no account
	publicJobs := public.Group("/jobs")
	{
		publicJobs.GET("", handler.List)
		publicJobs.GET("/:id", handler.GetDetails)
		publicJobs.GET("/owner/:ownerId", handler.ListByOwner)
	}

	// PROTECTED routes - owner only
	protectedJobs := protected.Group("/jobs")
	{
		protectedJobs.POST("", handler.Create)
		protectedJobs.DELETE("/:id", handler.Delete)
	}
}

type CreateJobRequest struct {
	Title       string  `json:"title" binding:"required"`
	SkillNeeded string  `json:"skillNeeded" binding:"required"`
	Location    string  `json:"location" binding:"required"`
	Area        *string `json:"area"`
	Colony      *string `json:"colony"`
	State       *string `json:"state"`
	Pincode     *string `json:"pincode"`
	Pay         float64 `json:"pay"`
	Duration    string  `json:"duration"`
	Status      string  `json:"status"`
}

// CreateJob godoc
// @Summary      Create a new job
// @Description  Post a job as the authenticated owner. ownerId is taken from the session.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        job  body      CreateJobRequest  true  "Job JSON"
// @Success      201  {object}  response.Response{data=domain.Job}
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /jobs [post]
// @Security     BearerAuth
func (h *JobHandler) Create(c *gin.Context) {
	userID, role := actor(c)
	if role != domain.RoleOwner {
		c.Error(apperror.Forbidden("Only owners can post jobs"))
		return
	}

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	job := &domain.Job{
		Title:       req.Title,
		SkillNeeded: req.SkillNeeded,
		Location:    req.Location,
		Area:        req.Area,
		Colony:      req.Colony,
		State:       req.State,
		Pincode:     req.Pincode,
		Pay:         req.Pay,
		Duration:    req.Duration,
		Status:      req.Status,
	}
	if err := h.jobUC.CreateJob(c.Request.Context(), userID, job); err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusCreated, "Job created", job)
}

// ListJobs godoc
// @Summary      List jobs
// @Description  All jobs, newest first
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  response.Response{data=[]domain.Job}
// @Router       /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobUC.ListJobs(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Job list", jobs)
}

// ListByOwner godoc
// @Summary      List an owner's jobs
// @Tags         jobs
// @Produce      json
// @Param        ownerId  path      int  true  "Owner ID"
// @Success      200      {object}  response.Response{data=[]domain.Job}
// @Failure      400      {object}  response.Response
// @Router       /jobs/owner/{ownerId} [get]
func (h *JobHandler) ListByOwner(c *gin.Context) {
	ownerID, err := pathID(c, "ownerId")
	if err != nil {
		c.Error(err)
		return
	}

	jobs, err := h.jobUC.ListJobsByOwner(c.Request.Context(), ownerID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Owner job list", jobs)
}

// GetJobDetails godoc
// @Summary      Get job details
// @Tags         jobs
// @Produce      json
// @Param        id   path      int  true  "Job ID"
// @Success      200  {object}  response.Response{data=domain.Job}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /jobs/{id} [get]
func (h *JobHandler) GetDetails(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	job, err := h.jobUC.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Job details", job)
}

// DeleteJob godoc
// @Summary      Delete a job
// @Description  Delete one of the caller's jobs. Its applications are kept.
// @Tags         jobs
// @Produce      json
// @Param        id   path      int  true  "Job ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /jobs/{id} [delete]
// @Security     BearerAuth
func (h *JobHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	if err := h.jobUC.DeleteJob(c.Request.Context(), userID, id); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Job deleted", nil)
}
