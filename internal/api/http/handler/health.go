package handler

import (
	"net/http"

	"github.com/dtroode/vault-protector/internal/api/http/response"
)

// Health reports process liveness.
type Health struct {
	writer *response.Writer
}

func NewHealth(writer *response.Writer) *Health {
	return &Health{writer: writer}
}

func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	h.writer.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
