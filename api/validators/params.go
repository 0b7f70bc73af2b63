package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/money"
)

func fieldError(field, message string) error {
	return pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, message).WithDetails(map[string]any{"field": field})
}

// URLParamUUID parses a chi path parameter as a UUID.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(name, "invalid "+name)
	}
	return id, nil
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fieldError(key, "invalid "+key)
	}
	return &id, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fieldError(key, key+" must be true or false")
	}
	return value, nil
}

// ParseQueryInt reads an optional integer query parameter bounded to
// [min, max]; an absent value yields defaultVal. Limits are never clamped.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, key+" must be a whole number")
	}
	if value < min || value > max {
		return 0, fieldError(key, fmt.Sprintf("%s must be between %d and %d", key, min, max))
	}
	return value, nil
}

// ParseAmount converts a rupee string from a request body into paise.
func ParseAmount(field, raw string) (int64, error) {
	cents, err := money.ParseMajor(raw)
	if err != nil || cents <= 0 {
		return 0, pkgerrors.NewReason(pkgerrors.ReasonInvalidAmount, "amount must be a positive rupee value").WithDetails(map[string]any{"field": field})
	}
	return cents, nil
}
