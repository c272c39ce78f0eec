package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/burakkarakan/letter-engine/internal/domain"
)

func TestHTTPRendererRenderSuccess(t *testing.T) {
	t.Parallel()

	var gotRequest RenderRequest
	content := []byte("%PDF-1.7 rendered")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(content)
	}))
	defer server.Close()

	r, err := NewHTTPRenderer(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPRenderer() error = %v", err)
	}

	result, err := r.Render(context.Background(), RenderRequest{
		TemplateID:  "tpl-1",
		SignatureID: "sig-1",
		Fields: []RenderField{
			{Key: "employee_name", Label: "Employee", Value: "Jordan Smith"},
		},
	})
	if err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}

	if !bytes.Equal(result.Content, content) {
		t.Fatalf("Content = %q, want %q", result.Content, content)
	}
	if result.Size != int64(len(content)) {
		t.Fatalf("Size = %d, want %d", result.Size, len(content))
	}
	if gotRequest.TemplateID != "tpl-1" {
		t.Fatalf("request.templateId = %q, want tpl-1", gotRequest.TemplateID)
	}
	if len(gotRequest.Fields) != 1 || gotRequest.Fields[0].Value != "Jordan Smith" {
		t.Fatalf("request.fields = %+v, want one employee_name field", gotRequest.Fields)
	}
}

func TestHTTPRendererRenderFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("unknown template"))
	}))
	defer server.Close()

	r, err := NewHTTPRenderer(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPRenderer() error = %v", err)
	}

	_, err = r.Render(context.Background(), RenderRequest{TemplateID: "missing"})
	if !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("error = %v, want ErrRenderFailed", err)
	}
}

func TestHTTPRendererEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, err := NewHTTPRenderer(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPRenderer() error = %v", err)
	}

	_, err = r.Render(context.Background(), RenderRequest{TemplateID: "tpl-1"})
	if !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("error = %v, want ErrRenderFailed for empty document", err)
	}
}

func TestHTTPRendererValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPRenderer(" "); err == nil {
		t.Fatal("expected error for empty endpoint")
	}

	r, err := NewHTTPRenderer("http://localhost:1")
	if err != nil {
		t.Fatalf("NewHTTPRenderer() error = %v", err)
	}
	if _, err := r.Render(context.Background(), RenderRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for empty template id", err)
	}
}
