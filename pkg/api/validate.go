package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
)

// validate is shared across every handler that decodes a request body,
// mirroring the single package-level *validator.Validate the teacher's
// handlers construct once and reuse (it caches struct metadata
// internally, so a fresh instance per request would be wasteful).
var validate = validator.New()

// decodeAndValidate decodes r's body into dst and runs struct tag
// validation, returning a ready-to-write RFC 7807 problem on either
// failure.
func decodeAndValidate(r *http.Request, dst interface{}) *validation.RFC7807Problem {
	if problem := decodeJSON(r, dst); problem != nil {
		return problem
	}
	if err := validate.Struct(dst); err != nil {
		fields := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		} else {
			fields["_"] = err.Error()
		}
		return validation.NewValidationErrorProblem("request", fields)
	}
	return nil
}
