package server

import (
	"doclife/internal/domain"
	"doclife/internal/engine"
	"doclife/internal/permissions"
)

// Request payloads

type TransitionRequest struct {
	Payload        map[string]any `json:"payload,omitempty" doc:"Transition payload, for example a comment or cancel reason"`
	Patch          map[string]any `json:"patch,omitempty" doc:"Field changes applied before the transition"`
	ExpectedStatus string         `json:"expected_status,omitempty" doc:"Status the caller last saw"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Responses

type EntityResponse struct {
	Kind    domain.Kind       `json:"kind"`
	ID      string            `json:"id"`
	Status  domain.Status     `json:"status"`
	Version int64             `json:"version"`
	Fields  engine.Projection `json:"fields"`
}

type WriteResponse struct {
	Entity     EntityResponse    `json:"entity"`
	Activities []domain.Activity `json:"activities"`
	Intents    []domain.Intent   `json:"intents"`
}

type TransitionsResponse struct {
	Kind        domain.Kind `json:"kind"`
	ID          string      `json:"id"`
	Transitions []string    `json:"transitions"`
}

type PermissionsResponse struct {
	View []string `json:"view"`
	Edit []string `json:"edit"`
}

type WhoAmIResponse struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups"`
	Source string   `json:"source"`
}

type UserResponse struct {
	ID     string   `json:"id"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func entityResponse(e domain.Entity, fields engine.Projection) EntityResponse {
	m := e.Meta()
	if fields == nil {
		fields = engine.Projection{}
	}
	return EntityResponse{
		Kind:    e.Kind(),
		ID:      m.ID,
		Status:  m.Status,
		Version: m.Version,
		Fields:  fields,
	}
}

func writeResponse(res engine.Result) WriteResponse {
	return WriteResponse{
		Entity:     entityResponse(res.Entity, res.Projection),
		Activities: nonNilSlice(res.Activities),
		Intents:    nonNilSlice(res.Intents),
	}
}

func permissionsResponse(p permissions.Permissions) PermissionsResponse {
	return PermissionsResponse{View: trueKeys(p.View), Edit: trueKeys(p.Edit)}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
