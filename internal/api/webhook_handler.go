package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/hookrelay/internal/ingest"
)

// maxWebhookBodyBytes ограничивает размер тела webhook-доставки.
const maxWebhookBodyBytes = 1 << 20 // 1 MiB

// HandleWebhook принимает webhook-доставку от внешней системы.
// POST /api/v1/webhooks/{trigger_key}
//
// Повторная доставка того же события отвечает 202 с существующим run:
// для внешней системы повтор неотличим от первого успешного приёма.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	triggerKey := r.PathValue("trigger_key")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}

	headers := flattenHeaders(r.Header)
	idempotencyKey := r.Header.Get("X-Idempotency-Key")

	admission, err := h.gateway.Admit(r.Context(), triggerKey, body, headers, idempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnknownTrigger):
			NotFound(w, "unknown trigger key")
		case errors.Is(err, ingest.ErrInvalidPayload):
			BadRequest(w, err.Error())
		case errors.Is(err, ingest.ErrDuplicateConflict):
			Conflict(w, "duplicate delivery could not be resolved")
		default:
			InternalError(w, h.logger, err)
		}
		return
	}

	JSON(w, http.StatusAccepted, TriggerAcceptedResponse{
		RunID:        admission.RunID,
		Status:       string(admission.Status),
		Deduplicated: admission.Deduplicated,
	})
}

// flattenHeaders сводит multi-value заголовки к первому значению.
func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}
	return flat
}
