package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/campuscore/campuscore-sis/internal/assessment"
	auth "github.com/campuscore/campuscore-sis/internal/auth/middleware"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain error kinds onto HTTP statuses and emits a JSON body.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := assessment.KindOf(err)
	switch kind {
	case assessment.KindNotFound:
		status = http.StatusNotFound
	case assessment.KindInvalidState, assessment.KindConflict:
		status = http.StatusConflict
	case assessment.KindLimitExceeded:
		status = http.StatusUnprocessableEntity
	case assessment.KindValidation:
		status = http.StatusBadRequest
	case assessment.KindDependency:
		status = http.StatusBadGateway
	}
	body := map[string]any{"error": err.Error(), "kind": kind.String()}
	if f := assessment.FieldsOf(err); len(f) > 0 {
		body["fields"] = f
	}
	writeJSON(w, status, body)
}

func subjectOr401(w http.ResponseWriter, r *http.Request) string {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return sub
}

func writeForbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
}

// decodeValid decodes a JSON body into dst and runs struct validation,
// folding validator failures into the domain validation error shape.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return assessment.Validationf("malformed json: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = "failed " + fe.Tag()
			}
			return assessment.ValidationFields("invalid request", fields)
		}
		return assessment.Validationf("invalid request: %v", err)
	}
	return nil
}
