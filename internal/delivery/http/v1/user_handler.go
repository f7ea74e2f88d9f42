package v1

import (
	"net/http"
	"strconv"
	"strings"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// searchQuery is bound as strings so that a blank parameter (a submitted but
// empty form field) stays an inactive criterion instead of becoming zero.
type searchQuery struct {
	MinAge        string `form:"minAge"`
	MaxAge        string `form:"maxAge"`
	MinExperience string `form:"minExperience"`
	MaxExperience string `form:"maxExperience"`
	Pincode       string `form:"pincode"`
	ShowAll       string `form:"showAll"`
}

func (q searchQuery) criteria() (filter.Criteria, error) {
	var (
		cr  filter.Criteria
		err error
	)
	bounds := []struct {
		name  string
		value string
		dst   **float64
	}{
		{"minAge", q.MinAge, &cr.MinAge},
		{"maxAge", q.MaxAge, &cr.MaxAge},
		{"minExperience", q.MinExperience, &cr.MinExperience},
		{"maxExperience", q.MaxExperience, &cr.MaxExperience},
	}
	for _, b := range bounds {
		v := strings.TrimSpace(b.value)
		if v == "" {
			continue
		}
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return cr, apperror.BadRequest("Invalid filter: " + b.name + " must be a number")
		}
		*b.dst = &f
	}
	cr.Pincode = strings.TrimSpace(q.Pincode)
	if v := strings.TrimSpace(q.ShowAll); v != "" {
		if cr.ShowAll, err = strconv.ParseBool(v); err != nil {
			return cr, apperror.BadRequest("Invalid filter: showAll must be true or false")
		}
	}
	return cr, nil
}

type UserHandler struct {
	profileUC domain.ProfileUsecase
}

// NewUserHandler registers profile routes. optional serves the upsert so that
// registration works without a session.
func NewUserHandler(optional *gin.RouterGroup, protected *gin.RouterGroup, profileUC domain.ProfileUsecase) {
	handler := &UserHandler{profileUC: profileUC}

	optional.POST("/users", handler.Upsert)

	users := protected.Group("/users")
	{
		users.GET("", handler.List)
		users.GET("/:id", handler.Get)
	}
}

// Upsert godoc
// @Summary      Create or update a profile
// @Description  Without a session a new profile is created and a token returned. With a session the caller's own profile is updated.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      domain.ProfileInput  true  "Profile"
// @Success      200   {object}  response.Response{data=domain.UpsertResult}
// @Success      201   {object}  response.Response{data=domain.UpsertResult}
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /users [post]
func (h *UserHandler) Upsert(c *gin.Context) {
	var in domain.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	userID, _ := actor(c)
	result, err := h.profileUC.Upsert(c.Request.Context(), userID, in)
	if err != nil {
		c.Error(err)
		return
	}

	if result.Created {
		response.Success(c, http.StatusCreated, "Profile created", result)
		return
	}
	response.Success(c, http.StatusOK, "Profile updated", result)
}

// List godoc
// @Summary      Search profiles
// @Description  Lists profiles of a role (worker by default) matching the age, experience and pincode criteria. showAll=true bypasses every criterion.
// @Tags         users
// @Produce      json
// @Param        role           query     string  false  "worker | owner"
// @Param        minAge         query     number  false  "Minimum age"
// @Param        maxAge         query     number  false  "Maximum age"
// @Param        minExperience  query     number  false  "Minimum years of experience"
// @Param        maxExperience  query     number  false  "Maximum years of experience"
// @Param        pincode        query     string  false  "Exact pincode"
// @Param        showAll        query     bool    false  "Ignore all criteria"
// @Success      200            {object}  response.Response{data=domain.ProfileSearch}
// @Failure      400            {object}  response.Response
// @Router       /users [get]
// @Security     BearerAuth
func (h *UserHandler) List(c *gin.Context) {
	var query searchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(apperror.BadRequest("Invalid filter: " + err.Error()))
		return
	}
	criteria, err := query.criteria()
	if err != nil {
		c.Error(err)
		return
	}

	role := c.DefaultQuery("role", domain.RoleWorker)
	if role != domain.RoleWorker && role != domain.RoleOwner {
		c.Error(apperror.BadRequest("role must be worker or owner"))
		return
	}

	result, err := h.profileUC.Search(c.Request.Context(), role, criteria)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Profile list", result)
}

// Get godoc
// @Summary      Get a profile
// @Tags         users
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  response.Response{data=domain.Profile}
// @Failure      404  {object}  response.Response
// @Router       /users/{id} [get]
// @Security     BearerAuth
func (h *UserHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	user, err := h.profileUC.GetProfile(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "User profile", user)
}
