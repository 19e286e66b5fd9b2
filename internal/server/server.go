package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"doclife/internal/app"
	"doclife/internal/domain"
	"doclife/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
	Auth     AuthConfig
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"validation failed: end: must not be before start"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	app    *app.App
	auth   AuthConfig
	logger *logrus.Entry
	now    func() time.Time
}

// New returns an HTTP handler exposing the document lifecycle API.
func New(cfg Config) (http.Handler, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server: app required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.App.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger.WithField("component", "auth")
	}
	h := &handlers{app: cfg.App, auth: cfg.Auth, logger: logger.WithField("component", "server"), now: cfg.Now}
	if h.now == nil {
		h.now = time.Now
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema errors are the caller's fault, not a domain validation
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.App.Repo))
	hcfg := huma.DefaultConfig("doclife API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, h)
	registerUsers(group, h)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, h)
	}
	registerEntities(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

var statusForKind = map[domain.ErrorKind]int{
	domain.ErrKindNotFound:          http.StatusNotFound,
	domain.ErrKindStaleState:        http.StatusConflict,
	domain.ErrKindForbidden:         http.StatusForbidden,
	domain.ErrKindFieldNotEditable:  http.StatusForbidden,
	domain.ErrKindIllegalTransition: http.StatusConflict,
	domain.ErrKindUnknownTransition: http.StatusBadRequest,
	domain.ErrKindValidationFailed:  http.StatusUnprocessableEntity,
	domain.ErrKindConflict:          http.StatusConflict,
	domain.ErrKindInternal:          http.StatusInternalServerError,
}

func (h *handlers) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	kind := domain.KindOf(err)
	status, ok := statusForKind[kind]
	if !ok || kind == domain.ErrKindInternal {
		h.logger.WithContext(ctx).WithError(err).Error("request failed")
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
	var de *domain.Error
	errors.As(err, &de)
	var details map[string]any
	if len(de.Fields) > 0 {
		details = map[string]any{"fields": de.Fields}
	}
	return newAPIError(status, string(kind), de.Error(), details)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actor resolves the authenticated principal to a user with groups.
func (h *handlers) actor(ctx context.Context) (domain.User, huma.StatusError) {
	p, ok := principalFromContext(ctx)
	if !ok || p.User.ID == "" {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	u, err := h.app.Auth.Resolve(ctx, p.User)
	if err != nil {
		return domain.User{}, h.handleError(ctx, err)
	}
	return u, nil
}

func parseKind(raw string) (domain.Kind, huma.StatusError) {
	k, err := domain.ParseKind(raw)
	if err != nil {
		return "", newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return k, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, err = json.Marshal(oas)
		})
		if err != nil {
			http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>doclife API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		u, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, _ := principalFromContext(ctx)
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID: u.ID,
			Email:  u.Email,
			Groups: nonNilSlice(u.Groups),
			Source: p.Source,
		}}, nil
	})
}

func registerUsers(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if actor.ID != input.ID && !h.isAdmin(actor) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not allowed to read other users", nil)
		}
		u, err := h.app.Repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{ID: u.ID, Email: u.Email, Groups: nonNilSlice(u.Groups)}}, nil
	})
}

func (h *handlers) isAdmin(u domain.User) bool {
	role, ok := h.app.Config.Roles["admin"]
	if !ok {
		return false
	}
	for _, g := range role.Groups {
		if u.InGroup(g) {
			return true
		}
	}
	return false
}

func registerDevAuth(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signToken(h.auth, domain.User{ID: userID, Email: input.Body.Email, Groups: input.Body.Groups}, h.now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

type entityPath struct {
	Kind string `path:"kind" doc:"agreement, intervention, engagement, monitoring_activity or action_point"`
	ID   string `path:"id"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerEntities(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entities",
		Method:      http.MethodGet,
		Path:        "/{kind}",
		Summary:     "List entities of a kind",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind   string `path:"kind"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []EntityResponse `json:"body"`
	}, error) {
		if _, authErr := h.actor(ctx); authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		items, err := h.app.Repo.ListEntities(ctx, kind, domain.Status(input.Status), normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		out := make([]EntityResponse, 0, len(items))
		for _, it := range items {
			out = append(out, EntityResponse{Kind: it.Kind, ID: it.ID, Status: it.Status, Version: it.Version, Fields: engine.Projection{}})
		}
		return &struct {
			Body []EntityResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-entity",
		Method:        http.MethodPost,
		Path:          "/{kind}",
		Summary:       "Create entity",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Kind string         `path:"kind"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body WriteResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		fields, berr := rawBodyMap(ctx)
		if berr != nil {
			return nil, berr
		}
		res, err := h.app.Engine.Create(ctx, kind, fields, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body WriteResponse `json:"body"`
		}{Body: writeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/{kind}/{id}",
		Summary:     "Read entity",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body EntityResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		proj, err := h.app.Engine.Read(ctx, kind, input.ID, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body EntityResponse `json:"body"`
		}{Body: projectionResponse(kind, input.ID, proj)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entity",
		Method:      http.MethodPatch,
		Path:        "/{kind}/{id}",
		Summary:     "Update entity fields",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		entityPath
		Body map[string]any `json:"body"`
	}) (*struct {
		Body WriteResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		patch, berr := rawBodyMap(ctx)
		if berr != nil {
			return nil, berr
		}
		res, err := h.app.Engine.Update(ctx, kind, input.ID, patch, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body WriteResponse `json:"body"`
		}{Body: writeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entity",
		Method:        http.MethodDelete,
		Path:          "/{kind}/{id}",
		Summary:       "Delete entity in its initial status",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *entityPath) (*struct{}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		if err := h.app.Engine.Delete(ctx, kind, input.ID, actor); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-entity",
		Method:      http.MethodPost,
		Path:        "/{kind}/{id}/transitions/{name}",
		Summary:     "Run a named transition",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		entityPath
		Name string            `path:"name"`
		Body TransitionRequest `json:"body" required:"false"`
	}) (*struct {
		Body WriteResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		var raw struct {
			Payload        map[string]json.RawMessage `json:"payload"`
			Patch          map[string]json.RawMessage `json:"patch"`
			ExpectedStatus string                     `json:"expected_status"`
		}
		if data := bytes.TrimSpace(bodyBytes(ctx)); len(data) > 0 {
			if err := json.Unmarshal(data, &raw); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid transition body", nil)
			}
		}
		res, err := h.app.Engine.Transition(ctx, engine.TransitionRequest{
			Kind:           kind,
			ID:             input.ID,
			Name:           input.Name,
			Payload:        raw.Payload,
			Patch:          raw.Patch,
			ExpectedStatus: domain.Status(raw.ExpectedStatus),
		}, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body WriteResponse `json:"body"`
		}{Body: writeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-transitions",
		Method:      http.MethodGet,
		Path:        "/{kind}/{id}/transitions",
		Summary:     "Transitions the caller may run now",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body TransitionsResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		names, err := h.app.Engine.AvailableTransitions(ctx, kind, input.ID, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body TransitionsResponse `json:"body"`
		}{Body: TransitionsResponse{Kind: kind, ID: input.ID, Transitions: nonNilSlice(names)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-permissions",
		Method:      http.MethodGet,
		Path:        "/{kind}/{id}/permissions",
		Summary:     "Field view and edit permissions for the caller",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body PermissionsResponse `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		perms, err := h.app.Engine.Permissions(ctx, kind, input.ID, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body PermissionsResponse `json:"body"`
		}{Body: permissionsResponse(perms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-activities",
		Method:      http.MethodGet,
		Path:        "/{kind}/{id}/activities",
		Summary:     "Audit trail",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		actor, authErr := h.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, kerr := parseKind(input.Kind)
		if kerr != nil {
			return nil, kerr
		}
		acts, err := h.app.Engine.History(ctx, kind, input.ID, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: nonNilSlice(acts)}, nil
	})
}

func projectionResponse(kind domain.Kind, id string, p engine.Projection) EntityResponse {
	out := EntityResponse{Kind: kind, ID: id, Fields: p}
	if raw, ok := p["status"]; ok {
		_ = json.Unmarshal(raw, &out.Status)
	}
	if raw, ok := p["version"]; ok {
		_ = json.Unmarshal(raw, &out.Version)
	}
	return out
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// rawBodyMap returns the request body as top-level fields with their raw
// JSON values, so numbers and dates reach the engine untouched.
func rawBodyMap(ctx context.Context) (map[string]json.RawMessage, huma.StatusError) {
	data := bytes.TrimSpace(bodyBytes(ctx))
	if len(data) == 0 {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "body must be a JSON object", nil)
	}
	return out, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func trueKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
