// Package httpsource talks to the category service over HTTP.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

const (
	serviceName = "category-service"
	maxBody     = 8 << 20
)

// Doer is satisfied by both httpclient.Client and httpclient.CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Source implements source.Source against the category service REST API.
type Source struct {
	baseURL string
	client  Doer
	tracer  trace.Tracer
}

// New returns a Source rooted at baseURL, e.g. "http://category:8080/api/v1".
func New(baseURL string, client Doer) *Source {
	return &Source{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tracer:  otel.Tracer("taxonomy/httpsource"),
	}
}

// MainCategories calls GET /categories/main.
func (s *Source) MainCategories(ctx context.Context) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/main", nil, nil, &out)
	return out, err
}

// Subcategories calls GET /categories/subcategories/{parentID}.
func (s *Source) Subcategories(ctx context.Context, parentID string) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/subcategories/"+url.PathEscape(parentID), nil, nil, &out)
	return out, err
}

// Elements calls GET /categories/elements/{subcategoryID}.
func (s *Source) Elements(ctx context.Context, subcategoryID string) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/elements/"+url.PathEscape(subcategoryID), nil, nil, &out)
	return out, err
}

// Hierarchy calls GET /categories/hierarchy.
func (s *Source) Hierarchy(ctx context.Context) ([]*domain.TreeNode, error) {
	var out []*domain.TreeNode
	err := s.call(ctx, http.MethodGet, "/categories/hierarchy", nil, nil, &out)
	return out, err
}

// Search calls GET /categories/search?q=.
func (s *Source) Search(ctx context.Context, query string) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/search", url.Values{"q": {query}}, nil, &out)
	return out, err
}

// BySlug calls GET /categories/slug/{slug}.
func (s *Source) BySlug(ctx context.Context, slug string) (domain.CategoryNode, error) {
	var out domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/slug/"+url.PathEscape(slug), nil, nil, &out)
	return out, err
}

// ByType calls GET /categories/type/{type}.
func (s *Source) ByType(ctx context.Context, t domain.CategoryType) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/type/"+url.PathEscape(string(t)), nil, nil, &out)
	return out, err
}

// ByLevel calls GET /categories/level/{n}.
func (s *Source) ByLevel(ctx context.Context, level int) ([]domain.CategoryNode, error) {
	var out []domain.CategoryNode
	err := s.call(ctx, http.MethodGet, "/categories/level/"+strconv.Itoa(level), nil, nil, &out)
	return out, err
}

// Statistics calls GET /categories/statistics.
func (s *Source) Statistics(ctx context.Context) (domain.Statistics, error) {
	var out domain.Statistics
	err := s.call(ctx, http.MethodGet, "/categories/statistics", nil, nil, &out)
	return out, err
}

// Create calls POST /categories and returns the created node.
func (s *Source) Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error) {
	var out domain.CategoryNode
	err := s.call(ctx, http.MethodPost, "/categories", nil, draft, &out)
	return out, err
}

// Update calls PUT /categories/{id} and returns the updated node.
func (s *Source) Update(ctx context.Context, id string, patch domain.Patch) (domain.CategoryNode, error) {
	var out domain.CategoryNode
	err := s.call(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), nil, patch, &out)
	return out, err
}

// Delete calls DELETE /categories/{id}.
func (s *Source) Delete(ctx context.Context, id string) error {
	return s.call(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil, nil)
}

// call sends one request, maps failures to the taxonomy error kinds, and
// decodes the response into out when out is non-nil.
func (s *Source) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	ctx, span := s.tracer.Start(ctx, "category-service "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	err := s.do(ctx, method, path, query, in, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Source) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := httpclient.NewRequest(ctx, method, target, contentType, body)
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return httpclient.MapError(err, serviceName)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return httpclient.MapError(fmt.Errorf("read %s response: %w", path, err), serviceName)
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return httpclient.MapError(&httpclient.StatusError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("undecodable %s response: %v", path, err),
		}, serviceName)
	}
	return nil
}

// decodeEnvelope accepts either {"data": ...} or the bare payload.
func decodeEnvelope(raw []byte, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}
