package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/model"
)

// principal returns the caller injected by the authentication middleware.
func principal(cm model.ContextManager, r *http.Request) (model.Principal, error) {
	p, ok := cm.GetPrincipalFromContext(r.Context())
	if !ok {
		return model.Principal{}, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid "+name, apperr.FieldError{Field: name, Message: "must be a valid id"})
	}
	return id, nil
}

// queryInt parses an optional integer query parameter. ok is false when the
// parameter is absent.
func queryInt(r *http.Request, name string) (value int64, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, apperr.Validation("invalid query parameter", apperr.FieldError{Field: name, Message: "must be an integer"})
	}
	return value, true, nil
}

func queryRange(r *http.Request, name string, def, min, max int) (int, error) {
	value, ok, err := queryInt(r, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if value < int64(min) || value > int64(max) {
		var f fieldErrors
		f.intRange(name, int(value), min, max)
		return 0, apperr.Validation("invalid query parameter", f...)
	}
	return int(value), nil
}
