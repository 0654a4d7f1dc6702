package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/application"
	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// HTTP 处理器
// 负责处理与 Deep BSDE 训练任务相关的 HTTP 请求
type SolverHandler struct {
	svc *application.SolverService
}

// 创建 HTTP 处理器实例
func NewSolverHandler(svc *application.SolverService) *SolverHandler {
	return &SolverHandler{svc: svc}
}

// 注册路由
// 将处理器方法绑定到 Gin 路由引擎
func (h *SolverHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/v1/deepbsde")
	{
		api.POST("/runs", h.RunTraining)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/losses", h.GetLossHistory)
	}
}

// RunTrainingRequest 启动训练请求
type RunTrainingRequest struct {
	Dim          int       `json:"dim" binding:"required"`
	NoiseDim     int       `json:"noise_dim"`
	BatchSize    int       `json:"batch_size" binding:"required"`
	NumTimesteps int       `json:"num_timesteps" binding:"required"`
	T0           float64   `json:"t0"`
	Dt           float64   `json:"dt" binding:"required"`
	Width        int       `json:"width" binding:"required"`
	Depth        int       `json:"depth" binding:"required"`
	LearningRate float64   `json:"learning_rate" binding:"required"`
	NumIters     int       `json:"num_iters" binding:"required"`
	Seed         uint64    `json:"seed"`
	X0           []float64 `json:"x0"`
}

// RunTraining 启动一次训练
func (h *SolverHandler) RunTraining(c *gin.Context) {
	var req RunTrainingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	cmd := application.RunTrainingCommand{
		Dim:          req.Dim,
		NoiseDim:     req.NoiseDim,
		BatchSize:    req.BatchSize,
		NumTimesteps: req.NumTimesteps,
		T0:           req.T0,
		Dt:           req.Dt,
		Width:        req.Width,
		Depth:        req.Depth,
		LearningRate: req.LearningRate,
		NumIters:     req.NumIters,
		Seed:         req.Seed,
		X0:           req.X0,
	}

	runID, err := h.svc.RunTraining(c.Request.Context(), cmd)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
			return
		}
		logging.Error(c.Request.Context(), "Failed to run training", "error", err)
		if errors.Is(err, domain.ErrNonFiniteLoss) {
			response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), runID)
			return
		}
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response.Success(c, gin.H{"run_id": runID})
}

// GetRun 查询训练任务
func (h *SolverHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "id is required", "")
		return
	}

	run, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to get training run", "id", id, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if run == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "training run not found", "")
		return
	}

	response.Success(c, run)
}

// ListRuns 查询最近的训练任务
func (h *SolverHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list training runs", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response.Success(c, gin.H{"runs": runs})
}

// GetLossHistory 查询损失轨迹
func (h *SolverHandler) GetLossHistory(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "id is required", "")
		return
	}

	samples, err := h.svc.GetLossHistory(c.Request.Context(), id)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to get loss history", "id", id, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response.Success(c, gin.H{"samples": samples})
}
