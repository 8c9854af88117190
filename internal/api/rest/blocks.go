package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WriteRequest struct {
	Value interface{} `json:"value"`
}

// GET /api/v1/blocks
func (s *Server) listBlocks(c *gin.Context) {
	list := s.lm.Blocks().List()

	response := make([]blocks.Info, 0, len(list))
	for _, block := range list {
		response = append(response, block.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"blocks": response,
		"count":  len(response),
	})
}

// GET /api/v1/blocks/:id
func (s *Server) getBlock(c *gin.Context) {
	block, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, block.Info())
}

// POST /api/v1/blocks
func (s *Server) attachBlock(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BLOCK_400", "Invalid request body", err.Error()))
		return
	}

	block, err := s.lm.Blocks().AttachJSON(body)
	if err != nil {
		s.blockError(c, err)
		return
	}

	c.JSON(http.StatusCreated, block.Info())
}

// DELETE /api/v1/blocks/:id
func (s *Server) detachBlock(c *gin.Context) {
	block, ok := s.lookupBlock(c)
	if !ok {
		return
	}

	if err := s.lm.Blocks().Detach(block.ID); err != nil {
		s.blockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "block detached"})
}

// POST /api/v1/blocks/:id/refresh
func (s *Server) refreshBlock(c *gin.Context) {
	block, ok := s.lookupBlock(c)
	if !ok {
		return
	}

	value, err := s.lm.Blocks().Refresh(c.Request.Context(), block.ID)
	if err != nil {
		s.blockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    block.ID,
		"name":  block.Name,
		"kind":  value.Kind.String(),
		"value": value.Interface(),
	})
}

// POST /api/v1/blocks/:id/write
func (s *Server) writeBlock(c *gin.Context) {
	block, ok := s.lookupBlock(c)
	if !ok {
		return
	}

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BLOCK_400", "Invalid request body", err.Error()))
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BLOCK_400", "Missing value", nil))
		return
	}

	if err := s.lm.Blocks().Write(c.Request.Context(), block.ID, req.Value); err != nil {
		s.blockError(c, err)
		return
	}

	s.logger.Info("Block written via API",
		zap.String("block", block.Name),
		zap.Any("value", req.Value),
		zap.String("user", c.GetString("username")))

	c.JSON(http.StatusOK, gin.H{"message": "value written"})
}

// GET /api/v1/blocks/:id/history?limit=100
func (s *Server) blockHistory(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("HISTORY_503", "Sample history disabled", nil))
		return
	}

	block, ok := s.lookupBlock(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 10000 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("HISTORY_400", "limit must be 1..10000", c.Query("limit")))
		return
	}

	samples, err := store.LatestSamples(c.Request.Context(), block.Name, limit)
	if err != nil {
		s.logger.Error("Failed to load samples", zap.String("block", block.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("HISTORY_500", "Failed to load samples", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      block.ID,
		"name":    block.Name,
		"samples": samples,
		"count":   len(samples),
	})
}

// lookupBlock accepts either the block ID or its binding name.
func (s *Server) lookupBlock(c *gin.Context) (*blocks.Block, bool) {
	param := c.Param("id")

	if id, err := uuid.Parse(param); err == nil {
		if block, exists := s.lm.Blocks().Get(id); exists {
			return block, true
		}
	} else if block, exists := s.lm.Blocks().GetByName(param); exists {
		return block, true
	}

	c.JSON(http.StatusNotFound, types.NewErrorResponse("BLOCK_404", "Block not found", param))
	return nil, false
}

func (s *Server) blockError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, blocks.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("BLOCK_404", "Block not found", err.Error()))
	case errors.Is(err, blocks.ErrDuplicate):
		c.JSON(http.StatusConflict, types.NewErrorResponse("BLOCK_409", "Block already attached", err.Error()))
	case types.IsConfiguration(err):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BLOCK_400", "Invalid block configuration", err.Error()))
	default:
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("PLC_502", "PLC communication failed", err.Error()))
	}
}
