package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/googleapis/gax-go/v2"
)

// ExecutionCreator is the part of the Workflows executions client used here.
type ExecutionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowTrigger hands processed documents to a downstream workflow.
type WorkflowTrigger struct {
	client    ExecutionCreator
	projectID string
	location  string
	workflow  string
}

// NewWorkflowTrigger creates an executions client. It returns nil when no
// workflow is configured.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string) (*WorkflowTrigger, error) {
	if workflowID == "" {
		return nil, nil
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowTrigger{client: client, projectID: projectID, location: location, workflow: workflowID}, nil
}

// NewWorkflowTriggerWithClient wraps an existing client.
func NewWorkflowTriggerWithClient(client ExecutionCreator, projectID, location, workflowID string) *WorkflowTrigger {
	return &WorkflowTrigger{client: client, projectID: projectID, location: location, workflow: workflowID}
}

// Parent is the fully qualified workflow name.
func (w *WorkflowTrigger) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", w.projectID, w.location, w.workflow)
}

// Trigger starts one workflow execution with payload as its argument.
func (w *WorkflowTrigger) Trigger(ctx context.Context, payload models.WorkflowPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := w.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: w.Parent(),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
