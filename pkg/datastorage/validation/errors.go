/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package validation provides the control-plane API's RFC 7807
// ("application/problem+json") error responses (spec.md §4.9) and the
// ValidationError a repository raises for a rejected write.
package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports one or more field-level validation failures
// against a named resource (e.g. "session", "device").
type ValidationError struct {
	Resource    string
	Message     string
	FieldErrors map[string]string
}

func NewValidationError(resource, message string) *ValidationError {
	return &ValidationError{
		Resource:    resource,
		Message:     message,
		FieldErrors: make(map[string]string),
	}
}

func (e *ValidationError) AddFieldError(field, message string) {
	e.FieldErrors[field] = message
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return fmt.Sprintf("%s: %s", e.Resource, e.Message)
	}

	parts := make([]string, 0, len(e.FieldErrors))
	for field, msg := range e.FieldErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return fmt.Sprintf("%s: %s (fields: %s)", e.Resource, e.Message, strings.Join(parts, ", "))
}

func (e *ValidationError) ToRFC7807() *RFC7807Problem {
	p := NewValidationErrorProblem(e.Resource, e.FieldErrors)
	p.Detail = e.Message
	return p
}

// RFC7807Problem is an RFC 7807 "application/problem+json" response body.
// Extensions are flattened into the top-level JSON object alongside the
// standard type/title/status/detail/instance members.
type RFC7807Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Instance   string                 `json:"instance,omitempty"`
	Extensions map[string]interface{} `json:"-"`
}

func (p *RFC7807Problem) Error() string {
	return fmt.Sprintf("%s (%d): %s", p.Title, p.Status, p.Detail)
}

func (p *RFC7807Problem) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	for k, v := range p.Extensions {
		out[k] = v
	}
	return json.Marshal(out)
}

const problemTypeBase = "https://neurascale.io/errors/"

func resourceInstance(resource string) string {
	return "/v1/sessions/" + resource
}

func NewValidationErrorProblem(resource string, fieldErrors map[string]string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemTypeBase + "validation-error",
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   fmt.Sprintf("validation failed for %s", resource),
		Instance: resourceInstance(resource),
		Extensions: map[string]interface{}{
			"resource":     resource,
			"field_errors": fieldErrors,
		},
	}
}

func NewNotFoundProblem(resource, id string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemTypeBase + "not-found",
		Title:    "Resource Not Found",
		Status:   http.StatusNotFound,
		Detail:   fmt.Sprintf("%s %s not found", resource, id),
		Instance: resourceInstance(resource) + "/" + id,
		Extensions: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewInternalErrorProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "internal-error",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}

func NewServiceUnavailableProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "service-unavailable",
		Title:  "Service Unavailable",
		Status: http.StatusServiceUnavailable,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}

// NewAuthProblem is the control-plane API's 401 response (spec.md §6:
// "401/403 auth").
func NewAuthProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "authentication-required",
		Title:  "Authentication Required",
		Status: http.StatusUnauthorized,
		Detail: detail,
	}
}

// NewPermissionDeniedProblem is the control-plane API's 403 response for
// a recognized caller missing the scope an operation requires (spec.md
// §7: "PermissionError — emits access_denied ledger event; caller sees
// 403").
func NewPermissionDeniedProblem(scope string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "permission-denied",
		Title:  "Permission Denied",
		Status: http.StatusForbidden,
		Detail: fmt.Sprintf("missing required scope %q", scope),
		Extensions: map[string]interface{}{
			"required_scope": scope,
		},
	}
}

// NewRateLimitedProblem is the control-plane API's 429 response (spec.md
// §7: "ResourceError — shed per §4.5; caller sees 429").
func NewRateLimitedProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "rate-limited",
		Title:  "Too Many Requests",
		Status: http.StatusTooManyRequests,
		Detail: detail,
	}
}

// NewIntegrityViolationProblem is the control-plane API's 503 response
// when the ledger has entered chain-integrity lockdown (spec.md §6:
// "503 when the service is in chain-integrity lockdown").
func NewIntegrityViolationProblem(firstBadSeq uint64, reason string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   problemTypeBase + "ledger-integrity-violation",
		Title:  "Ledger Integrity Violation",
		Status: http.StatusServiceUnavailable,
		Detail: reason,
		Extensions: map[string]interface{}{
			"first_bad_seq": firstBadSeq,
		},
	}
}

func NewConflictProblem(resource, field, value string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemTypeBase + "conflict",
		Title:    "Resource Conflict",
		Status:   http.StatusConflict,
		Detail:   fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Instance: resourceInstance(resource),
		Extensions: map[string]interface{}{
			"resource": resource,
			"field":    field,
			"value":    value,
		},
	}
}
