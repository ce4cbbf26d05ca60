package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/link"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/routing"
	"github.com/e-CODEX/connector-sub004/internal/transport"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/middleware"
	"github.com/e-CODEX/connector-sub004/pkg/ratelimit"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

// Handler serves the operator API: routing rule management, link partner
// lifecycle and transport step inspection.
type Handler struct {
	rules    routing.Repository
	links    *link.Manager
	tracker  *transport.Tracker
	partners map[string]link.Partner
	logger   logger.Logger
}

func NewHandler(
	rules routing.Repository,
	links *link.Manager,
	tracker *transport.Tracker,
	declaredPartners []link.Partner,
	log logger.Logger,
) *Handler {
	partners := make(map[string]link.Partner, len(declaredPartners))
	for _, p := range declaredPartners {
		partners[p.Name] = p
	}

	return &Handler{
		rules:    rules,
		links:    links,
		tracker:  tracker,
		partners: partners,
		logger:   log,
	}
}

func NewRouter(h *Handler, cfg config.AdminConfig, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(tracing.GinMiddleware("connector-admin"))

	if cfg.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultConfig()
		if cfg.RateLimit.RPS > 0 {
			rlCfg.RPS = cfg.RateLimit.RPS
		}
		if cfg.RateLimit.Burst > 0 {
			rlCfg.Burst = cfg.RateLimit.Burst
		}
		if cfg.RateLimit.CleanupInterval > 0 {
			rlCfg.CleanupInterval = time.Duration(cfg.RateLimit.CleanupInterval) * time.Second
		}
		if cfg.RateLimit.MaxAge > 0 {
			rlCfg.MaxAge = time.Duration(cfg.RateLimit.MaxAge) * time.Second
		}
		router.Use(ratelimit.RateLimitMiddleware(rlCfg))
	}

	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/domains/:domainID/routing-rules")
		{
			rules.GET("", h.ListRoutingRules)
			rules.POST("", h.CreateRoutingRule)
		}
		rule := v1.Group("/routing-rules/:ruleID")
		{
			rule.GET("", h.GetRoutingRule)
			rule.PUT("", h.UpdateRoutingRule)
			rule.DELETE("", h.DeleteRoutingRule)
		}

		partners := v1.Group("/link-partners")
		{
			partners.GET("", h.ListLinkPartners)
			partners.POST("/:name/activate", h.ActivateLinkPartner)
			partners.POST("/:name/shutdown", h.ShutdownLinkPartner)
			partners.GET("/:name/transport-steps", h.ListTransportSteps)
		}

		v1.GET("/transport-steps", h.ListTransportSteps)
	}

	return router
}

func (h *Handler) ListRoutingRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), c.Param("domainID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rules == nil {
		rules = []routing.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

type routingRuleRequest struct {
	Name        string `json:"name" binding:"required"`
	Expression  string `json:"expression" binding:"required"`
	Priority    int    `json:"priority"`
	BackendName string `json:"backend_name" binding:"required"`
	Enabled     *bool  `json:"enabled"`
}

func (h *Handler) CreateRoutingRule(c *gin.Context) {
	var req routingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithCause(err).WithMessage("invalid routing rule payload"))
		return
	}

	if err := routing.ValidateExpression(req.Expression); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithCause(err).WithMessage("invalid match expression"))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &routing.Rule{
		DomainID:    c.Param("domainID"),
		Name:        req.Name,
		Expression:  req.Expression,
		Priority:    req.Priority,
		BackendName: req.BackendName,
		Enabled:     enabled,
	}

	if err := h.rules.CreateRule(c.Request.Context(), rule); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.InfowCtx(c.Request.Context(), "Routing rule created",
		"rule_id", rule.ID,
		"domain_id", rule.DomainID,
		"rule_name", rule.Name,
	)
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) GetRoutingRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("ruleID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) UpdateRoutingRule(c *gin.Context) {
	var req routingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithCause(err).WithMessage("invalid routing rule payload"))
		return
	}

	if err := routing.ValidateExpression(req.Expression); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithCause(err).WithMessage("invalid match expression"))
		return
	}

	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("ruleID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	rule.Name = req.Name
	rule.Expression = req.Expression
	rule.Priority = req.Priority
	rule.BackendName = req.BackendName
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.rules.UpdateRule(c.Request.Context(), rule); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteRoutingRule(c *gin.Context) {
	if err := h.rules.DeleteRule(c.Request.Context(), c.Param("ruleID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListLinkPartners(c *gin.Context) {
	active := h.links.ActivePartnerNames()
	activeSet := make(map[string]bool, len(active))
	for _, name := range active {
		activeSet[name] = true
	}

	type partnerView struct {
		Name              string `json:"name"`
		ConfigurationName string `json:"configuration_name"`
		LinkType          string `json:"link_type"`
		SendMode          string `json:"send_mode"`
		ReceiveMode       string `json:"receive_mode"`
		Active            bool   `json:"active"`
	}

	views := make([]partnerView, 0, len(h.partners))
	for _, p := range h.partners {
		views = append(views, partnerView{
			Name:              p.Name,
			ConfigurationName: p.ConfigurationName,
			LinkType:          string(p.LinkType),
			SendMode:          string(p.SendMode),
			ReceiveMode:       string(p.ReceiveMode),
			Active:            activeSet[p.Name],
		})
	}

	c.JSON(http.StatusOK, gin.H{"partners": views})
}

func (h *Handler) ActivateLinkPartner(c *gin.Context) {
	name := c.Param("name")
	partner, ok := h.partners[name]
	if !ok {
		h.respondError(c, pkgerrors.ErrNotFound.WithMessage("unknown link partner "+name))
		return
	}

	if err := h.links.ActivateLinkPartner(c.Request.Context(), partner); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "activated", "name": name})
}

func (h *Handler) ShutdownLinkPartner(c *gin.Context) {
	name := c.Param("name")
	if err := h.links.ShutdownLinkPartner(c.Request.Context(), name); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "shutdown", "name": name})
}

// ListTransportSteps returns the newest attempt per message and partner,
// filtered by current status. Statuses come comma separated in the "status"
// query parameter, partners in the path or comma separated in the "partner"
// query parameter; an empty filter means no results.
func (h *Handler) ListTransportSteps(c *gin.Context) {
	var statuses []transport.StepStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, transport.StepStatus(strings.TrimSpace(s)))
		}
	}

	var partners []string
	if name := c.Param("name"); name != "" {
		partners = []string{name}
	} else if raw := c.Query("partner"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				partners = append(partners, p)
			}
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	steps, err := h.tracker.FindLastAttempts(c.Request.Context(), statuses, partners, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if steps == nil {
		steps = []transport.Step{}
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Admin request failed",
		"path", c.FullPath(),
		"error", err,
	)
	c.JSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err))
}
