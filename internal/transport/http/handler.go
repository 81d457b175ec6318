package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"stampd/contracts/credential"
	"stampd/internal/siweauth"
	"stampd/internal/transport/httputil"
	dErrors "stampd/pkg/domain-errors"
)

// ChallengeService issues challenge credentials and validates signed
// challenges back into a proven address.
type ChallengeService interface {
	IssueChallenge(ctx context.Context, stampType, address string) (*credential.Credential, error)
	VerifyChallengeAndGetAddress(ctx context.Context, body *credential.VerifyRequestBody) (string, error)
}

// IssuanceService runs provider verification and mints stamp credentials for
// the types that pass.
type IssuanceService interface {
	VerifyAndIssue(ctx context.Context, types []string, address string, payload credential.RequestPayload) []credential.CredentialResponseBody
}

// TokenVerifier validates a bearer token and extracts the proven address.
type TokenVerifier interface {
	Enabled() bool
	VerifyAndExtractAddress(token string) (string, error)
}

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	challenges ChallengeService
	issuance   IssuanceService
	tokens     TokenVerifier
	logger     *slog.Logger
}

func NewHandler(challenges ChallengeService, issuance IssuanceService, tokens TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		challenges: challenges,
		issuance:   issuance,
		tokens:     tokens,
		logger:     logger,
	}
}

// handleChallenge mints a short-lived challenge credential binding the claimed
// address to a fresh nonce.
func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var body credential.ChallengeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cred, err := h.challenges.IssueChallenge(r.Context(), body.Payload.Type, body.Payload.Address)
	if err != nil {
		h.logger.Warn("challenge issuance failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, credential.ChallengeResponseBody{Credential: cred})
}

// handleVerify proves control of an address, runs the requested provider
// verifications, and returns one response entry per requested type.
//
// Address proof is token first: a valid bearer token short-circuits the
// challenge exchange entirely. Anything else falls through to the signed
// challenge path.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body credential.VerifyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if body.Payload.Type == "" && len(body.Payload.Types) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing stamp type"))
		return
	}

	address, err := h.resolveAddress(r, &body)
	if err != nil {
		h.logger.Warn("verify request rejected", "error", err)
		httputil.WriteError(w, err)
		return
	}

	responses := h.issuance.VerifyAndIssue(r.Context(), requestedTypes(body.Payload), address, body.Payload)

	// A single requested type that failed is reported as the whole response,
	// so single-stamp callers get a plain error body with the right status.
	if len(responses) == 1 && responses[0].Error != "" {
		status := responses[0].Code
		if status == 0 {
			status = http.StatusInternalServerError
		}
		httputil.WriteJSON(w, status, credential.ErrorResponseBody{
			Error: responses[0].Error,
			Code:  responses[0].Code,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, responses)
}

// resolveAddress establishes which address the caller controls. A valid bearer
// token wins; otherwise the signed challenge is checked, including that the
// challenge was issued for the requested stamp type.
func (h *Handler) resolveAddress(r *http.Request, body *credential.VerifyRequestBody) (string, error) {
	if h.tokens != nil && h.tokens.Enabled() {
		if token := siweauth.ExtractBearerToken(r.Header.Get("Authorization")); token != "" {
			address, err := h.tokens.VerifyAndExtractAddress(token)
			if err == nil {
				return address, nil
			}
			h.logger.Debug("bearer token rejected, falling back to challenge", "error", err)
		}
	}

	if body.Challenge != nil {
		want := "challenge-" + body.Payload.Type
		if body.Payload.Type == "" || body.Challenge.CredentialSubject.Provider != want {
			return "", dErrors.New(dErrors.CodeUnauthorized, "challenge does not match the requested type")
		}
	}

	return h.challenges.VerifyChallengeAndGetAddress(r.Context(), body)
}

// requestedTypes returns the batch of types to verify, falling back to the
// single type field when no batch was supplied.
func requestedTypes(payload credential.RequestPayload) []string {
	types := make([]string, 0, len(payload.Types))
	for _, t := range payload.Types {
		if t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = append(types, payload.Type)
	}
	return types
}
