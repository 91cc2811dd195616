// Package handlers implements the sample profile API served by both the
// Lambda entrypoint and the local emulator.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/schema"
	"lambdaguard/pkg/lambda"
)

// patchSchema allows any subset of the writable fields
const patchSchema = `{
  "pathParameters": {
    "id": "uuid:required",
  },
  "body": {
    "name":  {"type": "string", "trim": true, "min": 1, "max": 64},
    "email": "email",
    "age":   {"type": "integer", "min": 0, "max": 150},
    // replaces the whole tag list
    "tags":  {"type": "array", "max": 10, "items": "string:trim,min=1,max=32"},
  },
}`

// ProfileHandler handles profile requests
type ProfileHandler struct {
	store *ProfileStore
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(store *ProfileStore) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// NewProfileAPI builds an API serving profiles from store
func NewProfileAPI(store *ProfileStore, opts ...lambda.Option) (*lambda.API, error) {
	api, err := lambda.NewAPI(opts...)
	if err != nil {
		return nil, err
	}
	if err := NewProfileHandler(store).Register(api); err != nil {
		return nil, err
	}
	return api, nil
}

// Register binds the profile handlers and their schemas to api
func (h *ProfileHandler) Register(api *lambda.API) error {
	putFields, err := schema.ParseFields(map[string]string{
		"name":  "string:trim,required,min=1,max=64",
		"email": "email:required",
		"age":   "integer:min=0,max=150",
	})
	if err != nil {
		return err
	}
	putFields["tags"] = tagsSchema()

	patch, err := schema.ParseJSONC([]byte(patchSchema))
	if err != nil {
		return err
	}

	if err := api.GET(lambda.HandlerFunc(h.Get), schema.NewDeclaration().
		Params(schema.Fields{"id": schema.UUID()}).
		Query(schema.Fields{
			"limit": schema.Integer().Min(1).Max(100).Default(int64(20)),
			"tag":   schema.String().Trim(),
		})); err != nil {
		return err
	}
	if err := api.POST(lambda.HandlerFunc(h.Create), schema.NewDeclaration().
		Body(schema.Fields{
			"name":  schema.String().Trim().Min(1).Max(64).Required(),
			"email": schema.Email().Required(),
			"age":   schema.Integer().Min(0).Max(150),
			"tags":  tagsSchema(),
		})); err != nil {
		return err
	}
	if err := api.PUT(lambda.HandlerFunc(h.Replace), schema.NewDeclaration().
		Params(schema.Fields{"id": schema.UUID().Required()}).
		Body(putFields)); err != nil {
		return err
	}
	if err := api.PATCH(lambda.HandlerFunc(h.Update), patch); err != nil {
		return err
	}
	return api.DELETE(lambda.HandlerFunc(h.Delete), schema.NewDeclaration().
		Params(schema.Fields{"id": schema.UUID().Required()}))
}

func tagsSchema() *schema.Descriptor {
	return schema.Array(schema.String().Trim().Min(1).Max(32)).Max(10)
}

// Get returns one profile when an id is given, otherwise a page of profiles
func (h *ProfileHandler) Get(ctx context.Context, req *lambda.Request) (any, error) {
	if id, ok := req.PathParams["id"].(string); ok && id != "" {
		p, err := h.store.Get(ctx, id)
		if err != nil {
			return nil, toAPIError(err)
		}
		return p, nil
	}

	limit, _ := req.QueryParams["limit"].(int64)
	tag, _ := req.QueryParams["tag"].(string)
	profiles := h.store.List(ctx, tag, int(limit))
	return map[string]any{
		"items": profiles,
		"count": len(profiles),
	}, nil
}

// Create stores a new profile owned by the token subject, if any
func (h *ProfileHandler) Create(ctx context.Context, req *lambda.Request) (any, error) {
	body, _ := req.Body.(map[string]any)

	p := profileFromBody(body)
	if sub, ok := req.Claims["sub"].(string); ok {
		p.Owner = sub
	}

	created, err := h.store.Create(ctx, p)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &lambda.Response{
		Body:    created,
		Headers: map[string]any{"Location": "/profiles/" + created.ID},
	}, nil
}

// Replace overwrites every writable field of a profile
func (h *ProfileHandler) Replace(ctx context.Context, req *lambda.Request) (any, error) {
	id, _ := req.PathParams["id"].(string)
	body, _ := req.Body.(map[string]any)
	replacement := profileFromBody(body)

	updated, err := h.store.Update(ctx, id, func(p *Profile) {
		p.Name = replacement.Name
		p.Email = replacement.Email
		p.Age = replacement.Age
		p.Tags = replacement.Tags
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return updated, nil
}

// Update changes only the fields present in the body
func (h *ProfileHandler) Update(ctx context.Context, req *lambda.Request) (any, error) {
	id, _ := req.PathParams["id"].(string)
	body, _ := req.Body.(map[string]any)
	changes := profileFromBody(body)

	updated, err := h.store.Update(ctx, id, func(p *Profile) {
		if _, ok := body["name"]; ok {
			p.Name = changes.Name
		}
		if _, ok := body["email"]; ok {
			p.Email = changes.Email
		}
		if _, ok := body["age"]; ok {
			p.Age = changes.Age
		}
		if _, ok := body["tags"]; ok {
			p.Tags = changes.Tags
		}
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return updated, nil
}

// Delete removes a profile
func (h *ProfileHandler) Delete(ctx context.Context, req *lambda.Request) (any, error) {
	id, _ := req.PathParams["id"].(string)
	if err := h.store.Delete(ctx, id); err != nil {
		return nil, toAPIError(err)
	}
	return nil, nil
}

// profileFromBody reads a validated body; values already carry their
// coerced types
func profileFromBody(body map[string]any) *Profile {
	p := &Profile{}
	p.Name, _ = body["name"].(string)
	p.Email, _ = body["email"].(string)
	p.Age, _ = body["age"].(int64)
	if tags, ok := body["tags"].([]any); ok {
		p.Tags = make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				p.Tags = append(p.Tags, s)
			}
		}
	}
	return p
}

func toAPIError(err error) error {
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return apierrors.WithStatus(err, http.StatusNotFound)
	case errors.Is(err, ErrDuplicateEmail):
		return apierrors.WithStatus(err, http.StatusConflict)
	}
	return err
}
