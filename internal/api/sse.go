package api

import (
	"fmt"
	"net/http"
	"time"
)

const sseKeepAlive = 25 * time.Second

// handleSSE streams the caller's notifications as server-sent events. Every
// connection gets its own subscription, so several tabs can stay open.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// 1. The auth middleware has already put the user ID in the context.
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}

	// 2. Events must be flushed as they arrive.
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	// 3. SSE headers, then an early flush so the client sees the stream open.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// 4. Register this connection with the broker and drop it on return.
	sub := s.broker.Subscribe(userID)
	defer s.broker.Unsubscribe(sub)

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	// 5. Relay messages until the client goes away or the broker closes.
	for {
		select {
		case message, open := <-sub.C:
			if !open {
				// Broker shut down.
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-ticker.C:
			// Comment lines keep proxies from closing idle streams.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			// Client disconnected; the deferred Unsubscribe cleans up.
			return
		}
	}
}
