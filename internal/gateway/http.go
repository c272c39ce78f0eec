package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

type sendRequest struct {
	To         string             `json:"to"`
	Subject    string             `json:"subject"`
	Body       string             `json:"body"`
	TrackingID string             `json:"trackingId"`
	Attachment *attachmentPayload `json:"attachment,omitempty"`
}

type attachmentPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// HTTPGateway sends emails through an HTTP mail gateway.
type HTTPGateway struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPGateway(endpoint string) (*HTTPGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewHTTPGatewayWithClient(endpoint, client)
}

func NewHTTPGatewayWithClient(endpoint string, client *resty.Client) (*HTTPGateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPGateway{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (g *HTTPGateway) Send(ctx context.Context, msg OutboundEmail) (*GatewayResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gateway is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outbound email: %w", err)
	}

	reqBody := sendRequest{
		To:         msg.To,
		Subject:    msg.Subject,
		Body:       msg.Body,
		TrackingID: msg.TrackingID,
	}
	if msg.Attachment != nil {
		reqBody.Attachment = &attachmentPayload{
			Filename:    msg.Attachment.Filename,
			ContentType: msg.Attachment.ContentType,
			Content:     base64.StdEncoding.EncodeToString(msg.Attachment.Content),
		}
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(g.endpoint)
	if err != nil {
		return nil, &GatewayError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &GatewayError{
			Message:   "gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &GatewayResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  gatewayMessageID(response),
		}, nil
	}

	return nil, &GatewayError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

// gatewayMessageID prefers the messageId field from the response body, then
// falls back to correlation headers.
func gatewayMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	var parsed sendResponse
	if err := json.Unmarshal(response.Body(), &parsed); err == nil {
		if id := strings.TrimSpace(parsed.MessageID); id != "" {
			return id
		}
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
