// Package web provides HTTP handlers and REST API endpoints for the Warden
// governance control plane.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/registry"
	"github.com/quorumlabs/warden/pkg/services"
	"github.com/quorumlabs/warden/pkg/statemachine"
)

type APIHandlers struct {
	runService      *services.Run
	playbookService *services.Playbook
	policyService   *services.Policy
	draftService    *services.Draft
	stateMachine    *statemachine.Spec
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	runService *services.Run,
	playbookService *services.Playbook,
	policyService *services.Policy,
	draftService *services.Draft,
	stateMachine *statemachine.Spec,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		runService:      runService,
		playbookService: playbookService,
		policyService:   policyService,
		draftService:    draftService,
		stateMachine:    stateMachine,
		validator:       validator,
		registry:        registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.runService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Warden API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Warden API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Run handlers

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Start(c.Context(), services.StartRunRequest{
		PlaybookID:  req.PlaybookID,
		Environment: req.Environment,
		TriggeredBy: req.TriggeredBy,
		Variables:   req.Variables,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	req := services.ListRunsRequest{
		PlaybookID: c.Query("playbook_id"),
		Status:     c.Query("status"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "Invalid offset parameter")
		}

		req.Offset = offset
	}

	result, err := h.runService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":          result.Runs,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) PauseRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req PauseRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Pause(c.Context(), id, req.PausedBy, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) ResumeRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req ResumeRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Resume(c.Context(), id, req.ResumedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req CancelRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	run, err := h.runService.Cancel(c.Context(), id, req.CancelledBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// Playbook handlers

func (h *APIHandlers) GetPlaybooks(c fiber.Ctx) error {
	playbooks, err := h.playbookService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(playbooks)
}

func (h *APIHandlers) GetPlaybook(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Playbook ID is required")
	}

	playbook, err := h.playbookService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(playbook)
}

func (h *APIHandlers) CreatePlaybook(c fiber.Ctx) error {
	var req CreatePlaybookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.playbookService.Create(c.Context(), &models.Playbook{
		ID:             req.ID,
		Name:           req.Name,
		Description:    req.Description,
		Steps:          req.Steps,
		Variables:      req.Variables,
		TimeoutSeconds: req.TimeoutSeconds,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdatePlaybook(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Playbook ID is required")
	}

	var req CreatePlaybookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.playbookService.Update(c.Context(), id, &models.Playbook{
		Name:           req.Name,
		Description:    req.Description,
		Steps:          req.Steps,
		Variables:      req.Variables,
		TimeoutSeconds: req.TimeoutSeconds,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeletePlaybook(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Playbook ID is required")
	}

	if err := h.playbookService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Policy handlers

func (h *APIHandlers) EvaluatePolicy(c fiber.Ctx) error {
	var req EvaluateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	decision, err := h.policyService.Evaluate(c.Context(), policy.Request{
		RequestID:           req.RequestID,
		ActionType:          req.ActionType,
		TargetType:          req.TargetType,
		TargetID:            req.TargetID,
		DeploymentEnv:       req.DeploymentEnv,
		Actor:               req.Actor,
		ActionContext:       req.ActionContext,
		HasApproval:         req.HasApproval,
		ApprovalFingerprint: req.ApprovalFingerprint,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(decision)
}

func (h *APIHandlers) GetAuditTrail(c fiber.Ctx) error {
	keyHash := c.Query("key_hash")
	if keyHash == "" {
		return badRequest(c, "key_hash query parameter is required")
	}

	records, err := h.policyService.AuditByKeyHash(c.Context(), keyHash)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"key_hash": keyHash,
		"records":  records,
	})
}

// Draft handlers

func (h *APIHandlers) CreateDraft(c fiber.Ctx) error {
	var req CreateDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.draftService.Create(c.Context(), &models.Draft{
		ID:                 req.ID,
		IssueID:            req.IssueID,
		Title:              req.Title,
		Summary:            req.Summary,
		Body:               req.Body,
		Priority:           req.Priority,
		Assignee:           req.Assignee,
		Labels:             req.Labels,
		DependsOn:          req.DependsOn,
		AcceptanceCriteria: req.AcceptanceCriteria,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	draft, err := h.draftService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(draft)
}

func (h *APIHandlers) ApplyDraftPatch(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	var req ApplyPatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.draftService.ApplyPatch(c.Context(), id, req.Patch, req.ExpectedHash)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// State machine inspection handlers

func (h *APIHandlers) GetStates(c fiber.Ctx) error {
	names := h.stateMachine.StateNames()
	states := make([]*models.State, 0, len(names))

	for _, name := range names {
		state, err := h.stateMachine.StateByName(name)
		if err != nil {
			return internalError(c, err)
		}

		states = append(states, state)
	}

	return c.JSON(states)
}

func (h *APIHandlers) GetNextStates(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "State name is required")
	}

	next, err := h.stateMachine.NextStates(name)
	if err != nil {
		return notFound(c, "State not found")
	}

	return c.JSON(fiber.Map{
		"state": name,
		"next":  next,
	})
}

func (h *APIHandlers) CheckTransition(c fiber.Ctx) error {
	var req CheckTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	allowed := h.stateMachine.IsTransitionAllowed(req.From, req.To)

	response := fiber.Map{
		"from":    req.From,
		"to":      req.To,
		"allowed": allowed,
	}

	if transition, ok := h.stateMachine.GetTransition(req.From, req.To); ok {
		evidence := make(models.EvidenceSet, len(req.Evidence))
		for kind, observed := range req.Evidence {
			evidence[models.EvidenceKind(kind)] = observed
		}

		response["transition"] = transition
		response["preconditions"] = h.stateMachine.CheckPreconditions(transition, evidence)
	}

	return c.JSON(response)
}

func (h *APIHandlers) MapExternalStatus(c fiber.Ctx) error {
	source := c.Query("source")
	status := c.Query("status")

	if source == "" || status == "" {
		return badRequest(c, "source and status query parameters are required")
	}

	state, ok := h.stateMachine.MapExternalStatus(status, statemachine.ExternalSource(source))
	if !ok {
		return c.JSON(fiber.Map{"mapped": false})
	}

	return c.JSON(fiber.Map{
		"mapped": true,
		"state":  state,
	})
}
