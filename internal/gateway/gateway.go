package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Gateway is the outbound email delivery port.
type Gateway interface {
	Send(ctx context.Context, msg OutboundEmail) (*GatewayResponse, error)
}

// OutboundEmail is one email handed to the mail gateway. TrackingID ties the
// gateway call back to the job so provider callbacks can be correlated even
// before the provider message id is known.
type OutboundEmail struct {
	To         string
	Subject    string
	Body       string
	TrackingID string
	Attachment *Attachment
}

// Attachment is an optional rendered document shipped with the email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

func (m OutboundEmail) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if !strings.Contains(m.To, "@") {
		return fmt.Errorf("invalid recipient address %q", m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if strings.TrimSpace(m.TrackingID) == "" {
		return fmt.Errorf("tracking id is required")
	}
	return nil
}

// GatewayResponse stores gateway call metadata for audit and persistence.
type GatewayResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
