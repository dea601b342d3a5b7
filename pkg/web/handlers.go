// Package web provides the HTTP handlers for triggering and inspecting
// workflow executions.
package web

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/workflow"
)

type APIHandlers struct {
	engine      *workflow.Engine
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(engine *workflow.Engine, store persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: store,
		validator:   validate,
	}
}

// TriggerRequest is the body of POST /workflows/:id/trigger.
type TriggerRequest struct {
	LeadID      string         `json:"lead_id"      validate:"required"`
	TriggerData map[string]any `json:"trigger_data"`
}

// CreateWorkflow stores a new workflow definition after validating the model
// and its graph. Workflows are created as drafts unless a status is given.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var wf models.Workflow

	err := c.Bind().JSON(&wf)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if wf.ID == "" {
		wf.ID = "wf-" + uuid.New().String()
	}

	if wf.Status == "" {
		wf.Status = models.WorkflowStatusDraft
	}

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	err = h.validateWorkflow(&wf)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.persistence.SaveWorkflow(c.Context(), &wf)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

// UpdateWorkflow replaces an existing workflow definition.
func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	existing, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	var wf models.Workflow

	err = c.Bind().JSON(&wf)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	wf.ID = existing.ID
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now().UTC()

	if wf.Status == "" {
		wf.Status = existing.Status
	}

	err = h.validateWorkflow(&wf)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.persistence.SaveWorkflow(c.Context(), &wf)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) validateWorkflow(wf *models.Workflow) error {
	err := h.validator.Struct(wf)
	if err != nil {
		return err
	}

	err = workflow.ValidateGraph(wf)
	if err != nil {
		return err
	}

	// Boolean handles only make sense on edges leaving a condition node.
	for _, edge := range wf.Edges {
		if edge.Handle() == "" {
			continue
		}

		source := wf.NodeByID(edge.Source)
		if source != nil && !source.IsCondition() {
			return fmt.Errorf("edge %s: handle %q on non-condition node %s", edge.ID, edge.Handle(), source.ID)
		}
	}

	return nil
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

// TriggerWorkflow queues a new execution of the workflow for a lead.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.engine.Trigger(c.Context(), req.LeadID, c.Params("id"), req.TriggerData)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"execution_id": executionID})
}

// GetExecution returns the execution with its step ledger and recent logs.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	status, err := h.engine.GetStatus(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(status)
}

// CancelExecution abandons an in-flight execution.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	err := h.engine.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
