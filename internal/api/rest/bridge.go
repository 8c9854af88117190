package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/gin-gonic/gin"
)

type ResolveResponse struct {
	Family    string              `json:"family"`
	Reference logo.BlockReference `json:"reference"`
	Kind      string              `json:"kind"`
	Class     string              `json:"class"`
	Width     int                 `json:"width"`
}

// GET /api/v1/bridge/status
func (s *Server) getBridgeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// GET /api/v1/resolve?block=AI3&family=0BA7
func (s *Server) resolveBlock(c *gin.Context) {
	name := c.Query("block")
	if name == "" {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RESOLVE_400", "Missing block parameter", nil))
		return
	}

	var (
		family *logo.Family
		err    error
	)
	if fam := c.Query("family"); fam != "" {
		family, err = s.lm.Catalog().Family(fam)
	} else {
		family, err = s.lm.Bridge().Family()
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RESOLVE_400", "Unknown device family", err.Error()))
		return
	}

	ref, err := logo.Resolve(family, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RESOLVE_400", "Invalid block name", err.Error()))
		return
	}

	c.JSON(http.StatusOK, ResolveResponse{
		Family:    family.Name(),
		Reference: ref,
		Kind:      ref.Kind.String(),
		Class:     logo.ClassOf(ref.Region).String(),
		Width:     ref.Kind.Width(),
	})
}
