package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/trellis/internal/errors"
)

// adminTokenEnvVars are consulted in order for the admin bearer token.
// The endpoint is registered only when one of them is non-empty.
var adminTokenEnvVars = []string{"TRELLIS_ADMIN_TOKEN", "WORKHORSE_ADMIN_TOKEN"}

// Signals accepted by the admin endpoint.
const (
	SignalShutdown = "shutdown"
	SignalReload   = "reload"
)

type adminSignalRequest struct {
	Signal string `json:"signal"`
}

type adminSignalResponse struct {
	Status string `json:"status"`
	Signal string `json:"signal"`
}

// registerAdminEndpoint mounts POST /admin/signal when an admin token is
// configured in the environment. Without a token the route does not exist
// and requests fall through to the 404 handler.
func (s *Server) registerAdminEndpoint(r chi.Router) {
	token := adminToken()
	if token == "" {
		return
	}
	r.Post("/admin/signal", s.handleAdminSignal(token))
}

func adminToken() string {
	for _, name := range adminTokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// handleAdminSignal accepts a signal request authenticated by bearer
// token and forwards it to the registered callback.
func (s *Server) handleAdminSignal(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := bearerToken(r)
		if !ok {
			apperrors.RespondWithError(w, r, apperrors.New(apperrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			apperrors.RespondWithError(w, r, apperrors.New(apperrors.CodeForbidden, "invalid admin token"))
			return
		}

		var req adminSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.RespondWithError(w, r, apperrors.NewValidationError("invalid signal request body"))
			return
		}
		if req.Signal != SignalShutdown && req.Signal != SignalReload {
			apperrors.RespondWithError(w, r, apperrors.NewValidationError("signal must be shutdown or reload"))
			return
		}

		zap.L().Info("admin signal accepted",
			zap.String("signal", req.Signal),
			zap.String("request_id", apperrors.CorrelationIDFromContext(r.Context())),
		)
		if s.onSignal != nil {
			// Run the callback after responding so a shutdown signal does
			// not race the response write.
			defer s.onSignal(req.Signal)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(adminSignalResponse{Status: "accepted", Signal: req.Signal})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
