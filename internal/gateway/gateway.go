// Package gateway turns front door requests, API Gateway proxy events or
// plain HTTP requests, into one Request the handlers work with.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Local callers identify themselves with these headers.
const (
	HeaderIdentityID = "X-Identity-Id"
	HeaderAuthorName = "X-Author-Name"

	anonymousIdentity = "anonymous"
	maxBodyBytes      = 256 << 10
)

// Request is the canonical form of an API call.
type Request struct {
	Method    string
	Resource  string
	RequestID string

	RoomID    string
	SessionID string
	Query     map[string]string
	Body      []byte

	Caller models.Identity

	// BaseURL is the externally visible URL of the API root, without a
	// trailing slash.
	BaseURL string

	// AllowOrigin is echoed in Access-Control-Allow-Origin when set.
	AllowOrigin string
}

// DecodeBody unmarshals the JSON body into v. An empty body leaves v as is.
func (r Request) DecodeBody(v any) error {
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// FromProxyRequest adapts an API Gateway proxy integration event.
func FromProxyRequest(ev events.APIGatewayProxyRequest) (Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return Request{}, fmt.Errorf("failed to decode request body: %w", err)
		}
		body = decoded
	}

	query := make(map[string]string, len(ev.QueryStringParameters))
	for k, v := range ev.QueryStringParameters {
		query[k] = v
	}

	identity := ev.RequestContext.Identity
	req := Request{
		Method:    ev.HTTPMethod,
		Resource:  ev.Resource,
		RequestID: ev.RequestContext.RequestID,
		RoomID:    ev.PathParameters["room-id"],
		SessionID: ev.PathParameters["session-id"],
		Query:     query,
		Body:      body,
		Caller: models.Identity{
			ID:           identity.CognitoIdentityID,
			AuthProvider: identity.CognitoAuthenticationProvider,
		},
		AllowOrigin: ev.StageVariables["CorsOrigins"],
	}

	host := header(ev.Headers, "Host")
	if host == "" {
		host = ev.RequestContext.DomainName
	}
	if host != "" {
		req.BaseURL = "https://" + host
		// Only the default execute-api domain carries the stage in the path.
		if stage := ev.RequestContext.Stage; stage != "" && strings.HasSuffix(host, ".amazonaws.com") {
			req.BaseURL += "/" + stage
		}
	}
	return req, nil
}

// header looks a header up case-insensitively; proxy events keep the client's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// FromHTTP adapts a request routed by chi. resource is the route pattern.
func FromHTTP(r *http.Request, resource string) (Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return Request{}, fmt.Errorf("failed to read request body: %w", err)
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	caller := models.Identity{
		ID:   r.Header.Get(HeaderIdentityID),
		Name: r.Header.Get(HeaderAuthorName),
	}
	if caller.ID == "" {
		caller.ID = anonymousIdentity
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return Request{
		Method:    r.Method,
		Resource:  resource,
		RequestID: middleware.GetReqID(r.Context()),
		RoomID:    chi.URLParam(r, "room-id"),
		SessionID: chi.URLParam(r, "session-id"),
		Query:     query,
		Body:      body,
		Caller:    caller,
		BaseURL:   scheme + "://" + r.Host,
	}, nil
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Message string `json:"message"`
}

// ProxyResponse renders a JSON API Gateway proxy response.
func ProxyResponse(req Request, status int, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	if req.AllowOrigin != "" {
		headers["Access-Control-Allow-Origin"] = req.AllowOrigin
	}

	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorBody{Message: "Internal server error."})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(data),
	}
}
