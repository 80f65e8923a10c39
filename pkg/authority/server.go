package authority

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// maxRequestBody caps issuance and revocation request bodies.
const maxRequestBody = 64 << 10

// Server exposes an Authority over HTTP.
type Server struct {
	authority *Authority
	apiKey    string
	logger    *slog.Logger
}

// NewServer creates a server. A nil logger uses slog.Default().
func NewServer(a *Authority, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{authority: a, apiKey: apiKey, logger: logger}
}

// RegisterRoutes registers all VA routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET "+protocol.WellKnownPath, s.handleKeys)
	mux.HandleFunc("GET "+protocol.VerifyPathBase+"{id}", s.handleLookup)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Issuance routes
	mux.Handle("POST /api/v1/claims", RequireAPIKey(s.apiKey, http.HandlerFunc(s.handleIssue)))
	mux.Handle("POST /api/v1/claims/{id}/revoke", RequireAPIKey(s.apiKey, http.HandlerFunc(s.handleRevoke)))
}

// Handler returns the complete handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return LogRequests(s.logger, mux)
}

func (s *Server) handleKeys(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, s.authority.KeySet())
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	status, rec := s.authority.Lookup(r.PathValue("id"))
	writeJSON(w, status, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IssueRequest is the body of POST /api/v1/claims.
type IssueRequest struct {
	Recipient     claim.Recipient `json:"to"`
	Method        string          `json:"method"`
	Description   string          `json:"description,omitempty"`
	Tier          string          `json:"tier,omitempty"`
	ExpiresInDays int             `json:"expiresInDays,omitempty"`
	Cost          *claim.Cost     `json:"cost,omitempty"`
	Time          *int64          `json:"time,omitempty"`
	Physical      *bool           `json:"physical,omitempty"`
	Energy        *int64          `json:"energy,omitempty"`
	Test          bool            `json:"test,omitempty"`
}

// Params converts the request into claim parameters.
func (req *IssueRequest) Params() claim.Params {
	return claim.Params{
		Method:        req.Method,
		Description:   req.Description,
		RecipientName: req.Recipient.Name,
		Domain:        req.Recipient.Domain,
		Tier:          req.Tier,
		ExpiresInDays: req.ExpiresInDays,
		Cost:          req.Cost,
		Time:          req.Time,
		Physical:      req.Physical,
		Energy:        req.Energy,
		Test:          req.Test,
	}
}

// IssueResponse is the reply to a successful issuance.
type IssueResponse struct {
	Issued
	CompactURL string `json:"compactUrl,omitempty"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.ExpiresInDays < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("expiresInDays must not be negative"))
		return
	}

	issued, err := s.authority.Issue(req.Params())
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		s.logger.Error("issuance failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("issuance failed"))
		return
	}

	s.logger.Info("claim issued", "claim_id", issued.ID, "method", issued.Claim.Method)
	writeJSON(w, http.StatusCreated, IssueResponse{
		Issued:     *issued,
		CompactURL: s.authority.CompactURL(issued.Compact),
	})
}

// RevokeRequest is the body of POST /api/v1/claims/{id}/revoke.
type RevokeRequest struct {
	Reason protocol.RevocationReason `json:"reason"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req RevokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	_, err := s.authority.Revoke(id, req.Reason)
	switch {
	case errors.Is(err, ErrInvalidReason):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	case errors.Is(err, ErrClaimNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(protocol.LookupNotFound))
		return
	case errors.Is(err, ErrAlreadyRevoked):
		writeJSON(w, http.StatusConflict, errorBody("claim already revoked"))
		return
	case err != nil:
		s.logger.Error("revocation failed", "claim_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("revocation failed"))
		return
	}

	s.logger.Info("claim revoked", "claim_id", id, "reason", req.Reason)
	status, rec := s.authority.Lookup(id)
	writeJSON(w, status, rec)
}

func isValidationError(err error) bool {
	return errors.Is(err, claim.ErrMissingID) ||
		errors.Is(err, claim.ErrMissingIssuer) ||
		errors.Is(err, claim.ErrMissingRecipient) ||
		errors.Is(err, claim.ErrMissingIssuedAt) ||
		errors.Is(err, claim.ErrMissingMethod) ||
		protocol.GetErrorCode(err) == protocol.ErrCodeInvalidFormat
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
