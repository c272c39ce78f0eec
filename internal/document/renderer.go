package document

import (
	"context"
)

// RenderField is one name/value pair handed to the renderer in display
// order.
type RenderField struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

// RenderRequest describes one document to render.
type RenderRequest struct {
	TemplateID  string        `json:"templateId"`
	SignatureID string        `json:"signatureId,omitempty"`
	Fields      []RenderField `json:"fields"`
}

// RenderResult is the rendered document payload.
type RenderResult struct {
	Content []byte
	Size    int64
}

// Renderer is the outbound template rendering port.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}
