package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stitchline/stitchline/internal/shared"
)

var validate = validator.New()

// Bind decodes the JSON body into target and runs its validate tags.
func Bind(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return shared.Validationf("malformed request body: %v", err)
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return shared.Validationf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return shared.Validationf("%v", err)
	}
	return nil
}

// IDParam parses a positive int64 URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid %s", name)
	}
	return id, nil
}
