package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

// DeviceService defines device management operations.
type DeviceService interface {
	List(ctx context.Context, userID, currentDeviceID uuid.UUID) ([]service.DeviceView, error)
	Rename(ctx context.Context, userID, deviceID uuid.UUID, name string) (model.Device, error)
	Trust(ctx context.Context, userID, deviceID uuid.UUID, meta model.RequestMeta) (model.Device, error)
	Delete(ctx context.Context, principal model.Principal, deviceID uuid.UUID, meta model.RequestMeta) error
	CleanupDuplicates(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error)
}

// Device handles device endpoints.
type Device struct {
	deviceService  DeviceService
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewDevice creates a new Device handler.
func NewDevice(deviceService DeviceService, contextManager model.ContextManager, writer *response.Writer, logger *logger.Logger) *Device {
	return &Device{
		deviceService:  deviceService,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

func (h *Device) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	devices, err := h.deviceService.List(r.Context(), p.UserID, p.DeviceID)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, newDeviceView(d.Device, d.IsCurrent))
	}

	h.writer.JSON(w, http.StatusOK, map[string][]deviceView{"devices": views})
}

func (h *Device) Rename(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	deviceID, err := pathID(r, "id")
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var req RenameDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	device, err := h.deviceService.Rename(r.Context(), p.UserID, deviceID, strings.TrimSpace(req.Name))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]deviceView{"device": newDeviceView(device, device.ID == p.DeviceID)})
}

func (h *Device) Trust(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	deviceID, err := pathID(r, "id")
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	device, err := h.deviceService.Trust(r.Context(), p.UserID, deviceID, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]deviceView{"device": newDeviceView(device, device.ID == p.DeviceID)})
}

// Delete removes another device and signs it out.
func (h *Device) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	deviceID, err := pathID(r, "id")
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	if err := h.deviceService.Delete(r.Context(), p, deviceID, h.contextManager.GetRequestMetaFromContext(r.Context())); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.NoContent(w)
}

func (h *Device) Cleanup(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	removed, err := h.deviceService.CleanupDuplicates(r.Context(), p, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]int{"removedCount": removed})
}
