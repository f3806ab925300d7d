package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
)

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	messages, err := h.messages.FindAll(r.Context())
	if err != nil {
		h.respondErr(w, r, mLogger, "Error listing messages", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Messages found", messages)
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.MessageCreateDto
	if err := decodeBody(w, r, &dto); err != nil {
		h.respondErr(w, r, mLogger, "Error decoding request body", err)
		return
	}

	created, err := h.messages.Add(r.Context(), dto)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error posting message", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusCreated, "Message sent successfully", created)
}
