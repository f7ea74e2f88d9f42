package v1

import (
	"strconv"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// actor returns the authenticated caller set by the auth middleware.
// The id is zero for anonymous requests.
func actor(c *gin.Context) (int64, string) {
	return c.GetInt64(string(domain.KeyUserID)), c.GetString(string(domain.KeyUserRole))
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.BadRequest("Invalid ID format")
	}
	return id, nil
}
