package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("XTRACT_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnv("XTRACT_TEST_KEY", "default"))
	assert.Equal(t, "default", GetEnv("XTRACT_TEST_MISSING", "default"))
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://uploads/2024/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "uploads", bucket)
	assert.Equal(t, "2024/report.pdf", object)

	for _, bad := range []string{"https://x/y", "gs://bucket", "gs:///obj", "gs://bucket/"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestPageImageObject(t *testing.T) {
	assert.Equal(t, "doc-1/00042.png", PageImageObject("doc-1", 42))
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(errors.New("boom")))
}

func TestExtractText(t *testing.T) {
	assert.Empty(t, ExtractText(nil))
	assert.Empty(t, ExtractText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Line one\n"), genai.Text("Line two")}},
		}},
	}
	assert.Equal(t, "Line one\nLine two", ExtractText(resp))
}

func TestVertexProbeWithoutModel(t *testing.T) {
	var c *VertexClient
	assert.False(t, c.Probe(context.Background()).Available)
}

type fakeExecutions struct {
	req *executionspb.CreateExecutionRequest
	err error
}

func (f *fakeExecutions) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &executionspb.Execution{Name: req.Parent + "/executions/e-1"}, nil
}

func TestWorkflowTrigger(t *testing.T) {
	fake := &fakeExecutions{}
	w := NewWorkflowTriggerWithClient(fake, "proj", "us-central1", "pages-ready")

	name, err := w.Trigger(context.Background(), models.WorkflowPayload{DocumentID: "d1", PageCount: 3, OCREngine: models.EngineMinerU})
	require.NoError(t, err)
	assert.Equal(t, "projects/proj/locations/us-central1/workflows/pages-ready/executions/e-1", name)

	var payload models.WorkflowPayload
	require.NoError(t, json.Unmarshal([]byte(fake.req.Execution.Argument), &payload))
	assert.Equal(t, "d1", payload.DocumentID)
	assert.Equal(t, models.EngineMinerU, payload.OCREngine)

	fake.err = errors.New("permission denied")
	_, err = w.Trigger(context.Background(), models.WorkflowPayload{DocumentID: "d1"})
	assert.ErrorContains(t, err, "permission denied")
}

func TestNewWorkflowTriggerDisabled(t *testing.T) {
	w, err := NewWorkflowTrigger(context.Background(), "proj", "us-central1", "")
	assert.NoError(t, err)
	assert.Nil(t, w)
}
