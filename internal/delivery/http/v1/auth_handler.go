package v1

import (
	"net/http"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUC domain.AuthUsecase
}

func NewAuthHandler(public *gin.RouterGroup, protected *gin.RouterGroup, authUC domain.AuthUsecase, loginLimit gin.HandlerFunc) {
	handler := &AuthHandler{authUC: authUC}

	// Public Routes
	public.POST("/auth/login", loginLimit, handler.Login)

	// Protected Routes
	protected.GET("/auth/me", handler.Me)
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary      Log in
// @Description  Exchange phone and password for a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Credentials"
// @Success      200   {object}  response.Response{data=domain.LoginResult}
// @Failure      400   {object}  response.Response
// @Failure      401   {object}  response.Response
// @Failure      429   {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	result, err := h.authUC.Login(c.Request.Context(), domain.LoginInput{Phone: req.Phone, Password: req.Password})
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Login successful", result)
}

// Me godoc
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response{data=domain.Profile}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
// @Security     BearerAuth
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := actor(c)
	user, err := h.authUC.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "User profile", user)
}
