package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all workflows, newest first, with their graphs loaded.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , status
		  , variables
		  , metadata
		  , created_at
		  , updated_at
		  , published_at
		FROM workflows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow with its graph loaded.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , status
		  , variables
		  , metadata
		  , created_at
		  , updated_at
		  , published_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow row and rewrites its nodes and edges in one
// transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	variables, err := json.Marshal(workflow.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow variables: %w", err)
	}

	metadata, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow metadata: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin workflow save transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	upsert := `
		INSERT INTO workflows (id, name, description, status, variables, metadata, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err = transaction.ExecContext(ctx, upsert,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		variables,
		metadata,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear workflow nodes: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_edges WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear workflow edges: %w", err)
	}

	for _, node := range workflow.Nodes {
		config, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config for node %s: %w", node.ID, err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, node_type, name, execution_order, config, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, workflow.ID, node.ID, node.Type, node.Name, node.ExecutionOrder, config, node.PositionX, node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for position, edge := range workflow.Edges {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_edges (workflow_id, id, source, target, source_handle, enabled, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, workflow.ID, edge.ID, edge.Source, edge.Target, edge.SourceHandle, edge.Enabled, position)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", edge.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		variables []byte
		metadata  []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&variables,
		&metadata,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(variables) > 0 {
		err = json.Unmarshal(variables, &workflow.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow variables: %w", err)
		}
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &workflow.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow metadata: %w", err)
		}
	}

	return &workflow, nil
}

// loadGraph populates the workflow's nodes and edges. Edge order matters:
// the engine picks the first matching edge, so edges come back in insert
// position order.
func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, execution_order, config, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY execution_order
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer r.closeRows(ctx, nodeRows)

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for nodeRows.Next() {
		var (
			node   models.WorkflowNode
			config []byte
		)

		err = nodeRows.Scan(&node.ID, &node.Type, &node.Name, &node.ExecutionOrder, &config, &node.PositionX, &node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to scan workflow node: %w", err)
		}

		if len(config) > 0 {
			err = json.Unmarshal(config, &node.Config)
			if err != nil {
				return fmt.Errorf("failed to unmarshal config for node %s: %w", node.ID, err)
			}
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	err = nodeRows.Err()
	if err != nil {
		return fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx, `
		SELECT id, source, target, source_handle, enabled
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer r.closeRows(ctx, edgeRows)

	workflow.Edges = make([]*models.Edge, 0)

	for edgeRows.Next() {
		var edge models.Edge

		err = edgeRows.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.SourceHandle, &edge.Enabled)
		if err != nil {
			return fmt.Errorf("failed to scan workflow edge: %w", err)
		}

		workflow.Edges = append(workflow.Edges, &edge)
	}

	err = edgeRows.Err()
	if err != nil {
		return fmt.Errorf("error iterating workflow edges: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
