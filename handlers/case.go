package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/telcoops/casedesk/db"
	"github.com/telcoops/casedesk/services"
)

// CaseHandler exposes the case lifecycle over HTTP.
type CaseHandler struct {
	Cases   *services.CaseService
	History *services.HistoryService
}

func NewCaseHandler(cases *services.CaseService, history *services.HistoryService) *CaseHandler {
	return &CaseHandler{Cases: cases, History: history}
}

// actorID pulls the authenticated user id set by the auth middleware.
func actorID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func caseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// statusCodeFor maps service errors to HTTP statuses.
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, services.ErrCaseNotFound), errors.Is(err, services.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrTerminalStatus),
		errors.Is(err, services.ErrEmptyAssignment),
		errors.Is(err, services.ErrInvalidSeverity),
		errors.Is(err, services.ErrDuplicateFingerprint):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusCodeFor(err), gin.H{"error": err.Error()})
}

func (h *CaseHandler) Get(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	result, err := h.Cases.GetCase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := db.CaseResponse{Case: *result}
	if activity, err := h.Cases.GetActivity(c.Request.Context(), id); err == nil {
		if len(activity) > 10 {
			activity = activity[len(activity)-10:]
		}
		resp.RecentActivity = activity
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CaseHandler) List(c *gin.Context) {
	filters := services.CaseFilters{
		Status:   c.Query("status"),
		Severity: c.Query("severity"),
		Category: c.Query("category"),
		RuleUID:  c.Query("rule_uid"),
	}
	if raw := c.Query("user_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.UserID = &id
		}
	}
	if raw := c.Query("limit"); raw != "" {
		filters.Limit, _ = strconv.Atoi(raw)
	}
	if raw := c.Query("offset"); raw != "" {
		filters.Offset, _ = strconv.Atoi(raw)
	}

	cases, err := h.Cases.ListCases(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

func (h *CaseHandler) Create(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newCase := &db.Case{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Category:    req.Category,
		Labels:      req.Labels,
		Source:      "manual",
	}
	created, err := h.Cases.CreateCase(c.Request.Context(), newCase, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *CaseHandler) Assign(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.AssignCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Cases.AssignCase(c.Request.Context(), id, &req, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) Acknowledge(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.AcknowledgeCaseRequest
	_ = c.ShouldBindJSON(&req) // note is optional

	result, err := h.Cases.AcknowledgeCase(c.Request.Context(), id, req.Note, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) Resolve(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.ResolveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Cases.ResolveCase(c.Request.Context(), id, &req, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) Reopen(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.ReopenCaseRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.Cases.ReopenCase(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) Close(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.CloseCaseRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.Cases.CloseCase(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) Cancel(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.CancelCaseRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.Cases.CancelCase(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CaseHandler) AddComment(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req db.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.Cases.AddComment(c.Request.Context(), id, req.Body, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *CaseHandler) GetComments(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	comments, err := h.Cases.GetComments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *CaseHandler) GetActivity(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	activity, err := h.Cases.GetActivity(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}

// GetHistory returns the assignment ledger for a case.
func (h *CaseHandler) GetHistory(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	history, err := h.History.ListByCase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *CaseHandler) GetStats(c *gin.Context) {
	stats, err := h.Cases.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
