package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/session"
	"github.com/nao1215/linkforensics/internal/snapshot"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeValidation     = "VALIDATION_FAILED"
	CodeNotFound       = "NOT_FOUND"
	CodeUnavailable    = "PERSISTENCE_UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// errBadRequest marks malformed payloads.
var errBadRequest = errors.New("malformed request")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("accessid", func(fl validator.FieldLevel) bool {
		return model.IsAccessID(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeJSON reads a bounded JSON body into v and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return s.validate.Struct(v)
}

// writeJSON writes v with status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// writeError maps err to a status and an ErrorResponse.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeValidation,
			Message: "request validation failed",
			Fields:  validationFields(verrs),
		})
	case errors.Is(err, errBadRequest), errors.Is(err, snapshot.ErrInvalidSnapshot), errors.Is(err, session.ErrInvalidVisibility):
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidRequest, Message: err.Error()})
	case errors.Is(err, session.ErrRecordNotFound):
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: err.Error()})
	case errors.Is(err, database.ErrPersistenceUnavailable):
		s.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Code: CodeUnavailable, Message: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "internal error"})
	}
}

func (s *Server) writeNotFound(w http.ResponseWriter, what string) {
	s.writeJSON(w, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: what + " not found"})
}

// validationFields converts validator errors to field messages.
func validationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "oneof":
			msg = "Must be one of: " + fe.Param()
		case "max":
			msg = "Maximum length is " + fe.Param()
		case "accessid":
			msg = "Must be an access id (access-<unix-ms>-<suffix>)"
		default:
			msg = "Failed on " + fe.Tag()
		}
		fields[fe.Field()] = msg
	}
	return fields
}
