package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpcontext "github.com/dtroode/vault-protector/internal/api/http/context"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
	"github.com/dtroode/vault-protector/internal/testutil"
)

type sessionServiceMock struct{ mock.Mock }

func (m *sessionServiceMock) List(ctx context.Context, userID, currentSessionID uuid.UUID) ([]service.SessionView, error) {
	args := m.Called(ctx, userID, currentSessionID)
	return args.Get(0).([]service.SessionView), args.Error(1)
}

func (m *sessionServiceMock) RevokeOne(ctx context.Context, principal model.Principal, sessionID uuid.UUID, meta model.RequestMeta) error {
	return m.Called(ctx, principal, sessionID, meta).Error(0)
}

func (m *sessionServiceMock) RevokeOthers(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error) {
	args := m.Called(ctx, principal, meta)
	return args.Int(0), args.Error(1)
}

type deviceServiceMock struct{ mock.Mock }

func (m *deviceServiceMock) List(ctx context.Context, userID, currentDeviceID uuid.UUID) ([]service.DeviceView, error) {
	args := m.Called(ctx, userID, currentDeviceID)
	return args.Get(0).([]service.DeviceView), args.Error(1)
}

func (m *deviceServiceMock) Rename(ctx context.Context, userID, deviceID uuid.UUID, name string) (model.Device, error) {
	args := m.Called(ctx, userID, deviceID, name)
	return args.Get(0).(model.Device), args.Error(1)
}

func (m *deviceServiceMock) Trust(ctx context.Context, userID, deviceID uuid.UUID, meta model.RequestMeta) (model.Device, error) {
	args := m.Called(ctx, userID, deviceID, meta)
	return args.Get(0).(model.Device), args.Error(1)
}

func (m *deviceServiceMock) Delete(ctx context.Context, principal model.Principal, deviceID uuid.UUID, meta model.RequestMeta) error {
	return m.Called(ctx, principal, deviceID, meta).Error(0)
}

func (m *deviceServiceMock) CleanupDuplicates(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error) {
	args := m.Called(ctx, principal, meta)
	return args.Int(0), args.Error(1)
}

type userServiceMock struct{ mock.Mock }

func (m *userServiceMock) Profile(ctx context.Context, userID uuid.UUID) (model.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *userServiceMock) AuditLogs(ctx context.Context, userID uuid.UUID, q service.AuditQuery) (service.AuditPage, error) {
	args := m.Called(ctx, userID, q)
	return args.Get(0).(service.AuditPage), args.Error(1)
}

func (m *userServiceMock) DeleteAccount(ctx context.Context, principal model.Principal, authVerifier string, meta model.RequestMeta) error {
	return m.Called(ctx, principal, authVerifier, meta).Error(0)
}

func TestSession_ListAndRevoke(t *testing.T) {
	t.Parallel()

	svc := &sessionServiceMock{}
	h := NewSession(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())

	other := uuid.New()
	svc.On("List", mock.Anything, testPrincipal.UserID, testPrincipal.SessionID).Return([]service.SessionView{
		{
			SessionWithDevice: model.SessionWithDevice{
				Session:        model.Session{ID: testPrincipal.SessionID, DeviceID: testPrincipal.DeviceID},
				DeviceName:     "Laptop",
				DevicePlatform: model.PlatformDesktopLinux,
			},
			IsCurrent: true,
		},
	}, nil)
	svc.On("RevokeOne", mock.Anything, testPrincipal, other, testMeta).Return(nil)
	svc.On("RevokeOthers", mock.Anything, testPrincipal, testMeta).Return(2, nil)

	rec := httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/api/v1/sessions", "", true))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []struct {
			ID        string `json:"id"`
			IsCurrent bool   `json:"isCurrent"`
			Device    struct {
				Name     string `json:"name"`
				Platform string `json:"platform"`
			} `json:"device"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, rec).Data, &list))
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].IsCurrent)
	assert.Equal(t, "desktop-linux", list.Sessions[0].Device.Platform)

	req := newRequest(http.MethodDelete, "/api/v1/sessions/"+other.String(), "", true)
	req.SetPathValue("id", other.String())
	rec = httptest.NewRecorder()
	h.Revoke(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.RevokeOthers(rec, newRequest(http.MethodDelete, "/api/v1/sessions", "", true))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revokedCount":2}`, string(readEnvelope(t, rec).Data))

	svc.AssertExpectations(t)
}

func TestSession_RevokeBadID(t *testing.T) {
	t.Parallel()

	svc := &sessionServiceMock{}
	h := NewSession(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())

	req := newRequest(http.MethodDelete, "/api/v1/sessions/not-a-uuid", "", true)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "RevokeOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDevice_Delete(t *testing.T) {
	t.Parallel()

	other := uuid.New()
	tests := []struct {
		name       string
		deviceID   uuid.UUID
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "other device", deviceID: other, wantStatus: http.StatusNoContent},
		{
			name:       "current device",
			deviceID:   testPrincipal.DeviceID,
			err:        apperr.Forbidden("cannot remove current device, use logout instead"),
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "unknown device",
			deviceID:   other,
			err:        apperr.NotFound("device not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &deviceServiceMock{}
			h := NewDevice(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())
			svc.On("Delete", mock.Anything, testPrincipal, tt.deviceID, testMeta).Return(tt.err)

			req := newRequest(http.MethodDelete, "/api/v1/devices/"+tt.deviceID.String(), "", true)
			req.SetPathValue("id", tt.deviceID.String())
			rec := httptest.NewRecorder()
			h.Delete(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				env := readEnvelope(t, rec)
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestDevice_RenameAndCleanup(t *testing.T) {
	t.Parallel()

	svc := &deviceServiceMock{}
	h := NewDevice(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())

	deviceID := uuid.New()
	svc.On("Rename", mock.Anything, testPrincipal.UserID, deviceID, "Work laptop").
		Return(model.Device{ID: deviceID, Name: "Work laptop", Platform: model.PlatformDesktopMacOS}, nil)
	svc.On("CleanupDuplicates", mock.Anything, testPrincipal, testMeta).Return(3, nil)

	req := newRequest(http.MethodPatch, "/api/v1/devices/"+deviceID.String(), `{"name":"  Work laptop "}`, true)
	req.SetPathValue("id", deviceID.String())
	rec := httptest.NewRecorder()
	h.Rename(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(readEnvelope(t, rec).Data), `"name":"Work laptop"`)

	rec = httptest.NewRecorder()
	h.Cleanup(rec, newRequest(http.MethodPost, "/api/v1/devices/cleanup", "", true))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removedCount":3}`, string(readEnvelope(t, rec).Data))

	svc.AssertExpectations(t)
}

func TestUser_AuditLogs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantQuery  *service.AuditQuery
		wantStatus int
	}{
		{
			name:       "defaults",
			wantQuery:  &service.AuditQuery{Page: 1, Limit: service.DefaultAuditPageSize},
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit filter",
			query:      "?page=2&limit=5&action=user.login",
			wantQuery:  &service.AuditQuery{Page: 2, Limit: 5, Action: model.AuditUserLogin},
			wantStatus: http.StatusOK,
		},
		{name: "limit too large", query: "?limit=101", wantStatus: http.StatusBadRequest},
		{name: "page zero", query: "?page=0", wantStatus: http.StatusBadRequest},
		{name: "page not a number", query: "?page=two", wantStatus: http.StatusBadRequest},
		{name: "unknown action", query: "?action=vault.delete", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &userServiceMock{}
			h := NewUser(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())
			if tt.wantQuery != nil {
				svc.On("AuditLogs", mock.Anything, testPrincipal.UserID, *tt.wantQuery).Return(service.AuditPage{
					Entries: []model.AuditEntry{{
						ID:        uuid.New(),
						Action:    model.AuditUserLogin,
						Status:    model.AuditSuccess,
						CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
					}},
					Page:       tt.wantQuery.Page,
					Limit:      tt.wantQuery.Limit,
					Total:      1,
					TotalPages: 1,
				}, nil)
			}

			rec := httptest.NewRecorder()
			h.AuditLogs(rec, newRequest(http.MethodGet, "/api/v1/users/me/audit-logs"+tt.query, "", true))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantQuery == nil {
				svc.AssertNotCalled(t, "AuditLogs", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			var data struct {
				Logs []struct {
					IPAddress string `json:"ipAddress"`
					UserAgent string `json:"userAgent"`
				} `json:"logs"`
				Pagination struct {
					Page  int `json:"page"`
					Total int `json:"total"`
				} `json:"pagination"`
			}
			require.NoError(t, json.Unmarshal(readEnvelope(t, rec).Data, &data))
			require.Len(t, data.Logs, 1)
			assert.Equal(t, "unknown", data.Logs[0].IPAddress)
			assert.Equal(t, "unknown", data.Logs[0].UserAgent)
			assert.Equal(t, tt.wantQuery.Page, data.Pagination.Page)
			assert.Equal(t, 1, data.Pagination.Total)
		})
	}
}

func TestUser_ProfileAndDelete(t *testing.T) {
	t.Parallel()

	svc := &userServiceMock{}
	h := NewUser(svc, httpcontext.NewManager(), newWriter(), testutil.MakeNoopLogger())

	svc.On("Profile", mock.Anything, testPrincipal.UserID).Return(model.User{
		ID:                testPrincipal.UserID,
		Email:             testPrincipal.Email,
		HasMasterPassword: true,
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	svc.On("DeleteAccount", mock.Anything, testPrincipal, "wrong", testMeta).
		Return(apperr.Unauthorized("invalid password"))

	rec := httptest.NewRecorder()
	h.Profile(rec, newRequest(http.MethodGet, "/api/v1/users/me", "", true))
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		User struct {
			Email             string `json:"email"`
			HasMasterPassword bool   `json:"hasMasterPassword"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, rec).Data, &data))
	assert.Equal(t, testPrincipal.Email, data.User.Email)
	assert.True(t, data.User.HasMasterPassword)

	rec = httptest.NewRecorder()
	h.DeleteAccount(rec, newRequest(http.MethodDelete, "/api/v1/users/me", `{"authVerifier":"wrong"}`, true))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Profile(rec, newRequest(http.MethodGet, "/api/v1/users/me", "", false))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.AssertExpectations(t)
}
