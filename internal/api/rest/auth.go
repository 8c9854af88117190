package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/gin-gonic/gin"
)

// Login request/response types
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	accessToken, err := s.authService.LoginUser(req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusTooManyRequests, types.NewErrorResponse("AUTH_429", "Account locked", err.Error()))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.authService.AccessTokenTTL().Seconds()),
	})
}
