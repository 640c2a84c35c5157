package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
	"casebridge/pkg/circuitbreaker"
	"casebridge/pkg/metrics"
	"casebridge/pkg/ratelimit"
)

const (
	OperationLookupOrganisation = "lookup_organisation"
	OperationLookupContact      = "lookup_contact"
	OperationCreateCase         = "create_case"
	OperationCreateActivity     = "create_activity"
	OperationReportError        = "report_error"
)

// Response is the raw outcome of a CRM call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// EntityID returns the value of the entity reference header.
func (r *Response) EntityID() string {
	if r == nil {
		return ""
	}
	return r.Header.Get(EntityIDHeader)
}

// Client issues the CRM operations. Every request goes through the signing
// and 401-retry wrappers, the rate limiter and the circuit breaker.
type Client struct {
	baseURL string
	cfg     config.CRMConfig
	doer    Doer
	breaker *circuitbreaker.Wrapper
	limiter *ratelimit.Limiter
	logger  logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport underneath the auth wrappers.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

func WithCircuitBreaker(cb *circuitbreaker.Wrapper) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func NewClient(cfg config.CRMConfig, tokens TokenSource, log logger.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultCRMTimeout
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.APIURL, "/"),
		cfg:     cfg,
		doer:    &http.Client{Timeout: timeout},
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.doer = RetryUnauthorized(tokens, SignRequests(tokens, c.doer))
	return c
}

// IsClientError reports a 4xx response. The breaker treats those as
// successful calls since the CRM itself answered.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}

func (c *Client) LookupOrganisation(ctx context.Context, frn string) (*Response, error) {
	return c.get(ctx, OperationLookupOrganisation, "/accounts?"+lookupQuery(organisationSelect, organisationFilter, frn))
}

func (c *Client) LookupContact(ctx context.Context, crn string) (*Response, error) {
	return c.get(ctx, OperationLookupContact, "/contacts?"+lookupQuery(contactSelect, contactFilter, crn))
}

func (c *Client) CreateCase(ctx context.Context, organisationID, contactID, submissionID, submissionType string) (*Response, error) {
	payload := c.casePayload(organisationID, contactID, submissionID, submissionType)
	return c.post(ctx, OperationCreateCase, "/incidents?$select="+caseSelect, payload)
}

func (c *Client) CreateActivity(ctx context.Context, req ActivityRequest) (*Response, error) {
	return c.post(ctx, OperationCreateActivity, "/rpa_onlinesubmissions", c.activityPayload(req))
}

// ReportError posts err to the inbound error queue entity.
func (c *Client) ReportError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	payload, perr := c.errorPayload(NewErrorReport(err))
	if perr != nil {
		return perr
	}

	_, perr = c.post(ctx, OperationReportError, "/rpa_integrationinboundqueues", payload)
	return perr
}

func (c *Client) get(ctx context.Context, operation, path string) (*Response, error) {
	return c.send(ctx, operation, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, operation, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", operation, err)
	}
	return c.send(ctx, operation, http.MethodPost, path, body)
}

func (c *Client) send(ctx context.Context, operation, method, path string, body []byte) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := circuitbreaker.Execute(ctx, c.breaker, func() (*Response, error) {
		return c.do(ctx, operation, method, path, body)
	})

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.ObserveCRMRequest(operation, status, time.Since(start))

	if err != nil {
		c.logger.WarnwCtx(ctx, "CRM request failed",
			"operation", operation,
			"status", status,
			"error", err,
		)
		return resp, err
	}

	c.logger.DebugwCtx(ctx, "CRM request completed",
		"operation", operation,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")

	httpResp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, ErrTokenAcquisitionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("crm %s request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return resp, &HTTPError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return resp, nil
}
