package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
)

// listUsersHandler handles GET /api/user.
func (s *Server) listUsersHandler(c *gin.Context) {
	users, err := s.users.GetAllUsers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// getMeHandler handles GET /api/user/me and GET /api/auth/me.
func (s *Server) getMeHandler(c *gin.Context) {
	s.respondUser(c, callerID(c))
}

// getUserHandler handles GET /api/user/:id.
func (s *Server) getUserHandler(c *gin.Context) {
	s.respondUser(c, c.Param("id"))
}

func (s *Server) respondUser(c *gin.Context, userID string) {
	user, err := s.users.TryGetUserByID(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if user == nil {
		abortWithError(c, services.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, user)
}

// searchUsersHandler handles GET /api/user/search?q=.
func (s *Server) searchUsersHandler(c *gin.Context) {
	users, err := s.users.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// createUserHandler handles POST /api/user. Callers may only create their
// own profile; the id defaults to theirs.
func (s *Server) createUserHandler(c *gin.Context) {
	var info models.UserInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	userID := callerID(c)
	if info.ID == "" {
		info.ID = userID
	}
	if err := requireSelf(userID, info.ID); err != nil {
		abortWithError(c, err)
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), info)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user.User)
}

// updateUserHandler handles PUT /api/user/:id.
func (s *Server) updateUserHandler(c *gin.Context) {
	var info models.UserInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	userID := c.Param("id")
	if err := requireSelf(callerID(c), userID); err != nil {
		abortWithError(c, err)
		return
	}

	updated, err := s.users.UpdateUser(c.Request.Context(), userID, info)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteUserHandler handles DELETE /api/user/:id.
func (s *Server) deleteUserHandler(c *gin.Context) {
	userID := c.Param("id")
	if err := requireSelf(callerID(c), userID); err != nil {
		abortWithError(c, err)
		return
	}

	deleted, err := s.users.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !deleted {
		abortWithError(c, services.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func requireSelf(callerID, userID string) error {
	if callerID != userID {
		return fmt.Errorf("user %s cannot modify profile of %s: %w", callerID, userID, services.ErrForbidden)
	}
	return nil
}
