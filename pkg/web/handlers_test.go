package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence/memory"
	queuememory "github.com/cadencehq/cadence/pkg/queue/memory"
	"github.com/cadencehq/cadence/pkg/testutil"
	"github.com/cadencehq/cadence/pkg/web"
	"github.com/cadencehq/cadence/pkg/workflow"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	engine, err := workflow.NewEngine(workflow.Config{
		Persistence: store,
		Queue:       queuememory.NewQueue(clockwork.NewFakeClock()),
		Sender:      email.NewSlogSender(slog.Default()),
	})
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(engine, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Post("/:id/trigger", handlers.TriggerWorkflow)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	return app, store
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful creation",
			requestBody: models.Workflow{
				Name:        "Outreach Sequence",
				Description: "Initial outreach for new leads",
				Nodes: []*models.WorkflowNode{
					testutil.CreateTestNode(testutil.WithType(models.NodeTypeTrigger), testutil.WithOrder(0)),
				},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var wf models.Workflow

				err := json.Unmarshal(body, &wf)
				require.NoError(t, err)
				assert.Equal(t, "Outreach Sequence", wf.Name)
				assert.Equal(t, models.WorkflowStatusDraft, wf.Status)
				assert.NotEmpty(t, wf.ID)
			},
		},
		{
			name: "validation error - name too short",
			requestBody: models.Workflow{
				Name: "Ab",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name: "graph error - edge references missing node",
			requestBody: models.Workflow{
				Name: "Broken Graph",
				Nodes: []*models.WorkflowNode{
					testutil.CreateTestNode(testutil.WithID("a"), testutil.WithOrder(0)),
				},
				Edges: []*models.Edge{
					testutil.CreateTestEdge("a", "ghost", ""),
				},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "edge",
		},
		{
			name: "graph error - boolean handle on non-condition node",
			requestBody: models.Workflow{
				Name: "Misplaced Handle",
				Nodes: []*models.WorkflowNode{
					testutil.CreateTestNode(testutil.WithID("a"), testutil.WithOrder(0)),
					testutil.CreateTestNode(testutil.WithID("b"), testutil.WithOrder(1)),
				},
				Edges: []*models.Edge{
					testutil.CreateTestEdge("a", "b", models.EdgeHandleTrue),
				},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "non-condition",
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			var body []byte

			switch v := tt.requestBody.(type) {
			case string:
				body = []byte(v)
			default:
				var err error

				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			respBody, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			if tt.expectedError != "" {
				assert.Contains(t, string(respBody), tt.expectedError)
			}

			if tt.validateResult != nil {
				tt.validateResult(t, respBody)
			}
		})
	}
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)

	existing := testutil.CreateTestWorkflow(testutil.WithStatus(models.WorkflowStatusDraft))
	require.NoError(t, store.SaveWorkflow(context.Background(), existing))

	update := models.Workflow{
		Name:        "Renamed Sequence",
		Description: "Updated copy",
		Nodes:       existing.Nodes,
		Edges:       existing.Edges,
	}

	body, err := json.Marshal(update)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workflows/"+existing.ID, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved, err := store.WorkflowByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Sequence", saved.Name)
	assert.Equal(t, models.WorkflowStatusDraft, saved.Status)
}

func TestAPIHandlers_UpdateWorkflow_NotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	body, err := json.Marshal(models.Workflow{Name: "Whatever"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workflows/missing", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_TriggerWorkflow(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)

	wf := testutil.CreateTestWorkflow()
	require.NoError(t, store.SaveWorkflow(context.Background(), wf))

	lead := testutil.CreateTestLead()
	require.NoError(t, store.SaveLead(context.Background(), lead))

	body, err := json.Marshal(web.TriggerRequest{LeadID: lead.ID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+wf.ID+"/trigger", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result map[string]string

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.NotEmpty(t, result["execution_id"])
}

func TestAPIHandlers_TriggerWorkflow_MissingLeadID(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)

	wf := testutil.CreateTestWorkflow()
	require.NoError(t, store.SaveWorkflow(context.Background(), wf))

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+wf.ID+"/trigger", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_TriggerWorkflow_DraftRejected(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)

	wf := testutil.CreateTestWorkflow(testutil.WithStatus(models.WorkflowStatusDraft))
	require.NoError(t, store.SaveWorkflow(context.Background(), wf))

	lead := testutil.CreateTestLead()
	require.NoError(t, store.SaveLead(context.Background(), lead))

	body, err := json.Marshal(web.TriggerRequest{LeadID: lead.ID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+wf.ID+"/trigger", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_GetExecution_NotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/missing", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
