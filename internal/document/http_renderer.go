package document

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultRendererTimeout = 30 * time.Second

// HTTPRenderer renders documents through an HTTP template rendering
// service. Render failures are permanent: the same template and fields
// will fail the same way, so callers surface them instead of retrying.
type HTTPRenderer struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPRenderer(endpoint string) (*HTTPRenderer, error) {
	client := resty.New()
	client.SetTimeout(defaultRendererTimeout)
	client.SetRetryCount(0)

	return NewHTTPRendererWithClient(endpoint, client)
}

func NewHTTPRendererWithClient(endpoint string, client *resty.Client) (*HTTPRenderer, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("renderer endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid renderer endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRendererTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPRenderer{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("renderer is not initialized")
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	response, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: renderer request failed: %v", domain.ErrRenderFailed, err)
	}
	if response == nil {
		return nil, fmt.Errorf("%w: renderer returned empty response", domain.ErrRenderFailed)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: renderer returned status %d: %s",
			domain.ErrRenderFailed, statusCode, strings.TrimSpace(response.String()))
	}

	content := response.Body()
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: renderer returned empty document", domain.ErrRenderFailed)
	}

	out := make([]byte, len(content))
	copy(out, content)

	return &RenderResult{
		Content: out,
		Size:    int64(len(out)),
	}, nil
}
