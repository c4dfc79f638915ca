package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/http/response"
	"github.com/valyc0/fraudM/internal/platform/apierr"
	"github.com/valyc0/fraudM/internal/services"
)

type RuleHandler struct {
	svc services.RuleService
}

func NewRuleHandler(svc services.RuleService) *RuleHandler {
	return &RuleHandler{svc: svc}
}

type createRuleRequest struct {
	Name        *string  `json:"name"`
	Description string   `json:"description" binding:"required"`
	IsActive    *bool    `json:"is_active"`
	Tags        []string `json:"tags"`
}

type updateRuleRequest struct {
	Name            *string   `json:"name"`
	Description     *string   `json:"description"`
	IsActive        *bool     `json:"is_active"`
	Tags            *[]string `json:"tags"`
	ExpectedVersion *int      `json:"expected_version" binding:"omitempty,min=1"`
}

type changeStatusRequest struct {
	Status            string                 `json:"status" binding:"required"`
	ValidationResults map[string]interface{} `json:"validation_results"`
	Metrics           map[string]interface{} `json:"metrics"`
}

type listRulesResponse struct {
	Rules []*rules.Rule `json:"rules"`
	Count int           `json:"count"`
}

type deleteRuleResponse struct {
	Deleted bool   `json:"deleted"`
	RuleID  string `json:"rule_id"`
}

// POST /rules
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	rule, err := h.svc.Create(c.Request.Context(), services.CreateRuleInput{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		Tags:        req.Tags,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, rule)
}

// GET /rules/:id
func (h *RuleHandler) GetRule(c *gin.Context) {
	rule, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rule)
}

// GET /rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	response.RespondOK(c, listRulesResponse{Rules: list, Count: len(list)})
}

// PUT /rules/:id
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	rule, err := h.svc.Update(c.Request.Context(), c.Param("id"), services.UpdateRuleInput{
		Name:            req.Name,
		Description:     req.Description,
		IsActive:        req.IsActive,
		Tags:            req.Tags,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rule)
}

// DELETE /rules/:id
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, deleteRuleResponse{Deleted: true, RuleID: id})
}

// POST /rules/:id/deploy
func (h *RuleHandler) DeployRule(c *gin.Context) {
	rule, err := h.svc.MarkDeployed(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rule)
}

// POST /rules/:id/status
func (h *RuleHandler) ChangeStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	status, err := rules.ParseStatus(req.Status)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	rule, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("id"), services.StatusChangeInput{
		Status:            status,
		ValidationResults: req.ValidationResults,
		Metrics:           req.Metrics,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rule)
}
