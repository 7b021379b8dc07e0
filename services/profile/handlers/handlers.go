// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers wires the HTTP trigger surface. Handlers stay thin:
// bind, validate identifiers, delegate to the orchestrator or resolver,
// map the error taxonomy to status codes. Request auth and tenant
// middleware live in the gateway, not here.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JyotishAI/JyotishCore/pkg/validation"
	"github.com/JyotishAI/JyotishCore/services/profile/client"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
	"github.com/JyotishAI/JyotishCore/services/profile/orchestrator"
	"github.com/JyotishAI/JyotishCore/services/profile/resolver"
)

// Server holds handler dependencies.
type Server struct {
	orch     *orchestrator.Orchestrator
	resolver *resolver.Resolver
	clients  client.ClientProvider
	logger   *slog.Logger
}

// Register mounts all profile routes on the router.
func Register(router *gin.Engine, orch *orchestrator.Orchestrator, res *resolver.Resolver, clients client.ClientProvider, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, resolver: res, clients: clients, logger: logger}

	v1 := router.Group("/v1/tenants/:tenant/clients/:client")
	v1.POST("/profile/ensure", s.handleEnsure)
	v1.POST("/profile/generate", s.handleGenerate)
	v1.GET("/profile/status", s.handleStatus)
	v1.POST("/profile/retry", s.handleRetry)
	v1.POST("/dasha/resolve", s.handleResolve)
	v1.GET("/dasha/active-path", s.handleActivePath)
}

func (s *Server) ids(c *gin.Context) (tenant, clientID string, ok bool) {
	tenant, clientID = c.Param("tenant"), c.Param("client")
	if err := validation.ValidateID(tenant); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant", "details": err.Error()})
		return "", "", false
	}
	if err := validation.ValidateID(clientID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client", "details": err.Error()})
		return "", "", false
	}
	return tenant, clientID, true
}

// handleEnsure triggers generation opportunistically; it returns before the
// run finishes and is a no-op when a run is already active.
func (s *Server) handleEnsure(c *gin.Context) {
	tenant, clientID, ok := s.ids(c)
	if !ok {
		return
	}
	s.orch.EnsureProfile(c.Request.Context(), tenant, clientID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleGenerate(c *gin.Context) {
	tenant, clientID, ok := s.ids(c)
	if !ok {
		return
	}
	report, err := s.orch.GenerateProfile(c.Request.Context(), tenant, clientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleStatus(c *gin.Context) {
	tenant, clientID, ok := s.ids(c)
	if !ok {
		return
	}
	status, missing, err := s.orch.Status(c.Request.Context(), tenant, clientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "missing": missing})
}

type retryRequest struct {
	System       string `json:"system" binding:"required"`
	ArtifactType string `json:"artifact_type" binding:"required"`
}

// handleRetry clears the endpoint cooldown so the next run reattempts the
// artifact even if it failed recently.
func (s *Server) handleRetry(c *gin.Context) {
	if _, _, ok := s.ids(c); !ok {
		return
	}
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	s.orch.ForceRetry(req.System, req.ArtifactType)
	c.Status(http.StatusNoContent)
}

type resolveRequest struct {
	System string   `json:"system" binding:"required"`
	Level  string   `json:"level"`
	Path   []string `json:"path"`
}

func (s *Server) handleResolve(c *gin.Context) {
	tenant, clientID, ok := s.ids(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := validation.ValidateSystem(req.System); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid system", "details": err.Error()})
		return
	}
	path, err := validation.SanitizePath(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path", "details": err.Error()})
		return
	}

	record, err := s.clients.GetClient(c.Request.Context(), tenant, clientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	result, err := s.resolver.Resolve(c.Request.Context(), resolver.Request{
		Tenant:   tenant,
		ClientID: clientID,
		Birth:    record.BirthContextFor(req.System),
		Level:    req.Level,
		Path:     path,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleActivePath(c *gin.Context) {
	tenant, clientID, ok := s.ids(c)
	if !ok {
		return
	}
	system := c.DefaultQuery("system", "lahiri")
	if err := validation.ValidateSystem(system); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid system", "details": err.Error()})
		return
	}

	record, err := s.clients.GetClient(c.Request.Context(), tenant, clientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	chain, err := s.resolver.ActivePath(c.Request.Context(), resolver.Request{
		Tenant:   tenant,
		ClientID: clientID,
		Birth:    record.BirthContextFor(system),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": chain})
}

// writeError maps the error taxonomy to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var upstream *datatypes.UpstreamError
	switch {
	case errors.Is(err, datatypes.ErrIncompleteBirthData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, datatypes.ErrClientNotFound), errors.Is(err, datatypes.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, datatypes.ErrPathTooDeep):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
