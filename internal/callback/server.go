package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// HMACVerifier is the default TokenVerifier: a short-lived identity
// token is a hex-encoded HMAC-SHA256 of a shared secret over the literal
// string "enrichment-callback". It does not carry an expiry of its own;
// callers that need expiring tokens should compose their own
// TokenVerifier (the interface is the seam, not this implementation).
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier constructs an HMACVerifier over secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

const hmacVerifierMessage = "enrichment-callback"

// Verify implements TokenVerifier.
func (v *HMACVerifier) Verify(token string) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(hmacVerifierMessage))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(token)
	if err != nil || len(got) != len(expected) || subtle.ConstantTimeCompare(got, expected) != 1 {
		return enrichment.NewValidationError("callback: invalid identity token")
	}
	return nil
}

// Server adapts a Handler onto a chi router, authenticating with a
// bearer token in the same style as the engine's other HTTP surfaces.
type Server struct {
	handler  *Handler
	verifier TokenVerifier
	log      *zap.Logger
}

// NewServer constructs a Server. verifier may be nil to disable auth
// (local/dev only).
func NewServer(handler *Handler, verifier TokenVerifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{handler: handler, verifier: verifier, log: log}
}

// Routes builds a chi router exposing the callback endpoint, with a
// permissive CORS policy for the control plane's browser-facing proxy
// (the callback itself is server-to-server and bearer-authenticated, so
// CORS is a convenience for local tooling, not a security boundary).
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Post("/internal/enrichment-callback", s.handleCallback)
	return r
}

// Register mounts the callback route on an existing chi router.
func (s *Server) Register(r chi.Router) {
	r.Post("/internal/enrichment-callback", s.handleCallback)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.verifier != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || s.verifier.Verify(token) != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var event enrichment.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if event.JobID == "" || event.AccountID == "" || event.EnrichmentType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id, account_id and enrichment_type are required"})
		return
	}

	result, err := s.handler.Handle(r.Context(), event)
	if err != nil {
		s.writeError(w, event, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, event enrichment.CallbackEvent, err error) {
	s.log.Error("enrichment callback failed",
		zap.String("job_id", event.JobID),
		zap.String("account_id", event.AccountID),
		zap.String("enrichment_type", string(event.EnrichmentType)),
		zap.Error(err),
	)
	switch {
	case enrichment.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case enrichment.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
