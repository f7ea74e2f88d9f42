package v1

import (
	"net/http"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analyticsUC domain.AnalyticsUsecase
}

func NewAnalyticsHandler(protected *gin.RouterGroup, analyticsUC domain.AnalyticsUsecase) {
	handler := &AnalyticsHandler{analyticsUC: analyticsUC}

	analytics := protected.Group("/analytics")
	{
		analytics.GET("/owner/:ownerId/application-counts", handler.OwnerApplicationCounts)
		analytics.GET("/worker/:workerId/summary", handler.WorkerSummary)
	}
}

// OwnerApplicationCounts godoc
// @Summary      Applications per job
// @Description  Maps each of the owner's job ids to its number of applications
// @Tags         analytics
// @Produce      json
// @Param        ownerId  path      int  true  "Owner ID"
// @Success      200      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /analytics/owner/{ownerId}/application-counts [get]
// @Security     BearerAuth
func (h *AnalyticsHandler) OwnerApplicationCounts(c *gin.Context) {
	ownerID, err := pathID(c, "ownerId")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	counts, err := h.analyticsUC.OwnerApplicationCounts(c.Request.Context(), userID, ownerID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Application counts", counts)
}

// WorkerSummary godoc
// @Summary      Worker dashboard summary
// @Tags         analytics
// @Produce      json
// @Param        workerId  path      int  true  "Worker ID"
// @Success      200       {object}  response.Response{data=domain.WorkerSummary}
// @Failure      403       {object}  response.Response
// @Router       /analytics/worker/{workerId}/summary [get]
// @Security     BearerAuth
func (h *AnalyticsHandler) WorkerSummary(c *gin.Context) {
	workerID, err := pathID(c, "workerId")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	summary, err := h.analyticsUC.WorkerSummary(c.Request.Context(), userID, workerID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Worker summary", summary)
}
