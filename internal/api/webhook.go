package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/KeikobaBot/internal/messaging"
	"github.com/BTreeMap/KeikobaBot/internal/models"
)

// signatureHeader carries the webhook body signature.
const signatureHeader = "X-Line-Signature"

// webhookHandler authenticates and dispatches inbound messaging events.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to read body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, `"body" is empty.`)
		return
	}

	signature := r.Header.Get(signatureHeader)
	if !messaging.ValidateSignature(s.opts.ChannelSecret, signature, body) {
		slog.Info("Server.webhookHandler: signature validation failed")
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req models.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The platform sends an empty verification ping on setup; answer ok.
	if len(req.Events) == 0 {
		writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
		return
	}

	// One event per delivery in practice; process the first.
	if err := s.engine.HandleEvent(r.Context(), req.Events[0]); err != nil {
		slog.Error("Server.webhookHandler: engine failed", "error", err)
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}
