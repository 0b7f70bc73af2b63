package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var env types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env.Error
}

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "active"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"data":{"status":"active"}}`, w.Body.String())
}

func TestWriteErrorExposesDomainReason(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")
	err := fmt.Errorf("placing bid: %w", pkgerrors.NewReason(pkgerrors.ReasonBidTooLow, "bid must exceed ₹1,200.00").
		WithDetails(map[string]string{"minimum": "1200.00"}))

	WriteError(context.Background(), logger.Nop(), w, err)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeStateConflict), got.Code)
	require.Equal(t, string(pkgerrors.ReasonBidTooLow), got.Reason)
	require.Equal(t, "bid must exceed ₹1,200.00", got.Message)
	require.Equal(t, "req-42", got.RequestID)
	require.False(t, got.Retryable)
	require.NotNil(t, got.Details)
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &logs})
	w := httptest.NewRecorder()

	WriteError(context.Background(), logg, w, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeInternal), got.Code)
	require.Equal(t, "internal server error", got.Message)
	require.True(t, got.Retryable)
	require.Nil(t, got.Details)
	require.Contains(t, logs.String(), "password authentication failed")
}

func TestWriteErrorDropsDetailsWhenNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeForbidden, "merchants only").WithDetails("role=farmer")
	WriteError(context.Background(), nil, w, err)

	got := decodeError(t, w)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "merchants only", got.Message)
	require.Nil(t, got.Details)
}

func TestWriteJSONFallsBackWhenUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"ch": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "INTERNAL_ERROR"))
}

func TestWriteErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
