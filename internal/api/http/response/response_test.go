package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/testutil"
)

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) decoded {
	t.Helper()
	var body decoded
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriter_JSON(t *testing.T) {
	t.Parallel()

	wr := NewWriter(testutil.MakeNoopLogger(), false)
	rec := httptest.NewRecorder()

	wr.JSON(rec, http.StatusCreated, map[string]int{"version": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"version":2}`, string(body.Data))
	assert.Nil(t, body.Error)
}

func TestWriter_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		development bool
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails string
	}{
		{
			name:        "validation carries field details",
			err:         apperr.Validation("invalid request", apperr.FieldError{Field: "email", Message: "invalid email"}),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "invalid request",
			wantDetails: `[{"field":"email","message":"invalid email"}]`,
		},
		{
			name:        "wrapped conflict keeps versions",
			err:         fmt.Errorf("update: %w", apperr.VersionConflict(1, 2, nil)),
			wantStatus:  http.StatusConflict,
			wantCode:    "CONFLICT",
			wantMessage: "version mismatch: expected 1, current is 2",
			wantDetails: `{"currentVersion":2,"expectedVersion":1}`,
		},
		{
			name:        "plain error is sanitized",
			err:         errors.New("pq: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "internal server error",
		},
		{
			name:        "development exposes the cause",
			development: true,
			err:         errors.New("pq: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "pq: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wr := NewWriter(testutil.MakeNoopLogger(), tt.development)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/vault", nil)

			wr.Error(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMessage, body.Error.Message)
			if tt.wantDetails != "" {
				assert.JSONEq(t, tt.wantDetails, string(body.Error.Details))
			} else {
				assert.Empty(t, body.Error.Details)
			}
		})
	}
}

func TestWriter_EmptyResponses(t *testing.T) {
	t.Parallel()

	wr := NewWriter(testutil.MakeNoopLogger(), false)

	rec := httptest.NewRecorder()
	wr.NoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	wr.NotModified(rec)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}
