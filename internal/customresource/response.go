package customresource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/cfn"

	"github.com/familyarchive/stack-provisioners/internal/httpclient"
)

// MaxResponseBytes is the CloudFormation limit on a custom resource response body
const MaxResponseBytes = 4096

const truncatedSuffix = " [truncated]"

// ResponseSender delivers the final answer for an operation to CloudFormation
type ResponseSender interface {
	Send(ctx context.Context, responseURL string, resp *cfn.Response) error
}

// Putter uploads a body to a pre-signed URL
type Putter interface {
	Put(ctx context.Context, targetURL string, body []byte) (*httpclient.Response, error)
}

// Responder implements ResponseSender over HTTP
type Responder struct {
	client Putter
	logger *slog.Logger
}

// NewResponder creates a responder using the given HTTP client
func NewResponder(client Putter, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		client: client,
		logger: logger,
	}
}

// Send uploads the response to the pre-signed ResponseURL
func (r *Responder) Send(ctx context.Context, responseURL string, resp *cfn.Response) error {
	if responseURL == "" {
		return fmt.Errorf("response url is empty")
	}

	body, err := encodeResponse(resp)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "sending custom resource response",
		slog.String("status", string(resp.Status)),
		slog.String("request_id", resp.RequestID),
		slog.String("physical_resource_id", resp.PhysicalResourceID),
		slog.Int("body_bytes", len(body)),
	)

	if _, err := r.client.Put(ctx, responseURL, body); err != nil {
		return fmt.Errorf("failed to send custom resource response: %w", err)
	}
	return nil
}

// encodeResponse marshals resp, shortening Reason until the body fits
func encodeResponse(resp *cfn.Response) ([]byte, error) {
	out := *resp
	for {
		body, err := json.Marshal(&out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal custom resource response: %w", err)
		}
		if len(body) < MaxResponseBytes {
			return body, nil
		}
		if out.Reason == "" {
			return nil, fmt.Errorf("custom resource response is %d bytes, limit is %d", len(body), MaxResponseBytes)
		}

		keep := len(out.Reason) - (len(body) - MaxResponseBytes + 1) - len(truncatedSuffix)
		if keep <= 0 {
			out.Reason = ""
			continue
		}
		out.Reason = truncateUTF8(out.Reason, keep) + truncatedSuffix
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
