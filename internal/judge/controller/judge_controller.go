package controller

import (
	"context"
	"strconv"

	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeService is what the controller needs from the service layer.
type JudgeService interface {
	Judge(ctx context.Context, submissionID int64) (*model.Verdict, error)
	RunAdHoc(ctx context.Context, req *model.TestRequest) (*model.Verdict, error)
	ValidateJudger(ctx context.Context, src string) (model.JudgerValidation, error)
	Languages() []model.LanguageInfo
	GetVerdict(ctx context.Context, submissionID int64) (*model.Verdict, error)
	ProblemSummary(ctx context.Context, problemID int64) (*model.ProblemSummary, error)
}

// JudgeController handles judge requests.
type JudgeController struct {
	svc JudgeService
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc JudgeService) *JudgeController {
	return &JudgeController{svc: svc}
}

// RegisterRoutes mounts the judge API on r.
func (h *JudgeController) RegisterRoutes(r gin.IRouter) {
	r.GET("/languages", h.Languages)
	r.POST("/test", h.Test)
	r.POST("/judgers/validate", h.ValidateJudger)
	r.POST("/submissions/:id/rejudge", h.Rejudge)
	r.GET("/submissions/:id/verdict", h.GetVerdict)
	r.GET("/problems/:id/summary", h.ProblemSummary)
}

// Languages lists languages and installed toolchain versions.
func (h *JudgeController) Languages(c *gin.Context) {
	response.Success(c, h.svc.Languages())
}

// Test runs code against ad-hoc tests.
func (h *JudgeController) Test(c *gin.Context) {
	var req model.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.InvalidParams, "invalid request body"))
		return
	}
	verdict, err := h.svc.RunAdHoc(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}

// ValidateJudger checks custom judger source.
func (h *JudgeController) ValidateJudger(c *gin.Context) {
	var req model.ValidateJudgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.InvalidParams, "invalid request body"))
		return
	}
	res, err := h.svc.ValidateJudger(c.Request.Context(), req.Judger)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Rejudge judges a stored submission again.
func (h *JudgeController) Rejudge(c *gin.Context) {
	id, ok := pathID(c, "submission id")
	if !ok {
		return
	}
	verdict, err := h.svc.Judge(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}

// GetVerdict returns the stored verdict of one submission.
func (h *JudgeController) GetVerdict(c *gin.Context) {
	id, ok := pathID(c, "submission id")
	if !ok {
		return
	}
	verdict, err := h.svc.GetVerdict(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}

// ProblemSummary returns correct counts and outcomes for a problem.
func (h *JudgeController) ProblemSummary(c *gin.Context) {
	id, ok := pathID(c, "problem id")
	if !ok {
		return
	}
	summary, err := h.svc.ProblemSummary(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+what)
		return 0, false
	}
	return id, true
}
