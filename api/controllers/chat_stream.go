package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noorbazaar/storefront-backend/api/responses"
	chatsvc "github.com/noorbazaar/storefront-backend/internal/chat"
	"github.com/noorbazaar/storefront-backend/pkg/db/models"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
)

// ChatStream follows one conversation over server-sent events. Every change
// notification replays the full ordered feed, mirroring what the widget
// renders after a reload.
func ChatStream(source chatsvc.FeedSource, svc chatsvc.Service, logg *logger.Logger, chatMetrics *metrics.ChatMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "conversationID")

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		subscriber, err := chatsvc.NewSubscriber(source, svc, logg, chatMetrics)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building feed subscriber"))
			return
		}

		snapshots := make(chan []models.SupportMessage, 1)
		subscriber.OnChange = func(_ string, messages []models.SupportMessage) {
			// Drop the stale snapshot if the client is still flushing the
			// previous one, the next reload carries the full feed anyway.
			select {
			case snapshots <- messages:
			default:
				select {
				case <-snapshots:
				default:
				}
				select {
				case snapshots <- messages:
				default:
				}
			}
		}

		if err := subscriber.Subscribe(r.Context(), conversationID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribing conversation feed"))
			return
		}
		defer subscriber.Unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		writeFeedEvent(w, subscriber.Messages())
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case messages := <-snapshots:
				writeFeedEvent(w, messages)
				flusher.Flush()
			}
		}
	}
}

func writeFeedEvent(w http.ResponseWriter, messages []models.SupportMessage) {
	payload, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
