package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"stampd/contracts/credential"
	dErrors "stampd/pkg/domain-errors"
)

type stubChallengeService struct {
	issued       *credential.Credential
	issueErr     error
	address      string
	verifyErr    error
	verifyCalled bool
	lastBody     *credential.VerifyRequestBody
}

func (s *stubChallengeService) IssueChallenge(_ context.Context, _, _ string) (*credential.Credential, error) {
	return s.issued, s.issueErr
}

func (s *stubChallengeService) VerifyChallengeAndGetAddress(_ context.Context, body *credential.VerifyRequestBody) (string, error) {
	s.verifyCalled = true
	s.lastBody = body
	return s.address, s.verifyErr
}

type stubIssuanceService struct {
	responses []credential.CredentialResponseBody
	gotTypes  []string
	gotAddr   string
}

func (s *stubIssuanceService) VerifyAndIssue(_ context.Context, types []string, address string, _ credential.RequestPayload) []credential.CredentialResponseBody {
	s.gotTypes = types
	s.gotAddr = address
	return s.responses
}

type stubTokenVerifier struct {
	enabled bool
	address string
	err     error
	token   string
}

func (s *stubTokenVerifier) Enabled() bool { return s.enabled }

func (s *stubTokenVerifier) VerifyAndExtractAddress(token string) (string, error) {
	s.token = token
	return s.address, s.err
}

type HandlerSuite struct {
	suite.Suite

	challenges *stubChallengeService
	issuance   *stubIssuanceService
	tokens     *stubTokenVerifier
	server     http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.challenges = &stubChallengeService{}
	s.issuance = &stubIssuanceService{}
	s.tokens = &stubTokenVerifier{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(s.challenges, s.issuance, s.tokens, logger)
	s.server = NewRouter(h, nil, nil, logger)
}

func (s *HandlerSuite) post(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, req)
	return rec
}

func challengeCredential(provider string) *credential.Credential {
	return &credential.Credential{
		CredentialSubject: credential.Subject{
			ID:        "did:pkh:eip155:1:0xabc",
			Provider:  provider,
			Address:   "0xabc",
			Challenge: "sign this",
		},
	}
}

func (s *HandlerSuite) TestChallengeReturnsCredential() {
	s.challenges.issued = challengeCredential("challenge-Simple")

	rec := s.post("/challenge", credential.ChallengeRequestBody{
		Payload: credential.RequestPayload{Type: "Simple", Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusOK, rec.Code)

	var body credential.ChallengeResponseBody
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().NotNil(body.Credential)
	s.Equal("challenge-Simple", body.Credential.CredentialSubject.Provider)
}

func (s *HandlerSuite) TestChallengeServiceErrorMapsToStatus() {
	s.challenges.issueErr = dErrors.New(dErrors.CodeBadRequest, "missing address")

	rec := s.post("/challenge", credential.ChallengeRequestBody{}, nil)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "missing address")
}

func (s *HandlerSuite) TestChallengeRejectsMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/challenge", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestVerifyReturnsPerTypeResponses() {
	s.challenges.address = "0xabc"
	s.issuance.responses = []credential.CredentialResponseBody{
		{Credential: &credential.Credential{}, Record: map[string]string{"type": "ETHMaxi"}},
		{Error: "unable to verify provider", Code: http.StatusBadRequest},
	}

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload: credential.RequestPayload{
			Type:    "ETHMaxi",
			Types:   []string{"ETHMaxi", "ETHAdvocate"},
			Address: "0xabc",
		},
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]string{"ETHMaxi", "ETHAdvocate"}, s.issuance.gotTypes)
	s.Equal("0xabc", s.issuance.gotAddr)

	var body []credential.CredentialResponseBody
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body, 2)
	s.NotNil(body[0].Credential)
	s.Equal(http.StatusBadRequest, body[1].Code)
}

func (s *HandlerSuite) TestVerifySingleTypeFailureIsWholeResponse() {
	s.challenges.address = "0xabc"
	s.issuance.responses = []credential.CredentialResponseBody{
		{Error: "balance too low", Code: http.StatusForbidden},
	}

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload:   credential.RequestPayload{Type: "ETHMaxi", Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusForbidden, rec.Code)

	var body credential.ErrorResponseBody
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("balance too low", body.Error)
	s.Equal(http.StatusForbidden, body.Code)
}

func (s *HandlerSuite) TestVerifyChallengeRejectionIsUnauthorized() {
	s.challenges.verifyErr = dErrors.New(dErrors.CodeUnauthorized, "invalid challenge")

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload:   credential.RequestPayload{Type: "ETHMaxi", Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "invalid challenge")
}

func (s *HandlerSuite) TestVerifyExceptionIsServerError() {
	s.challenges.verifyErr = dErrors.New(dErrors.CodeVerification, "unable to validate challenge")

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload:   credential.RequestPayload{Type: "ETHMaxi", Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *HandlerSuite) TestVerifyRejectsChallengeForDifferentType() {
	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-Simple"),
		Payload:   credential.RequestPayload{Type: "ETHMaxi", Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.False(s.challenges.verifyCalled)
}

func (s *HandlerSuite) TestVerifyRejectsMissingType() {
	rec := s.post("/verify", credential.VerifyRequestBody{
		Payload: credential.RequestPayload{Address: "0xabc"},
	}, nil)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestVerifyBearerTokenSkipsChallenge() {
	s.tokens.enabled = true
	s.tokens.address = "0xdef"
	s.issuance.responses = []credential.CredentialResponseBody{
		{Credential: &credential.Credential{}},
	}

	rec := s.post("/verify", credential.VerifyRequestBody{
		Payload: credential.RequestPayload{Type: "ETHMaxi", Address: "0xdef"},
	}, map[string]string{"Authorization": "Bearer good-token"})

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("good-token", s.tokens.token)
	s.Equal("0xdef", s.issuance.gotAddr)
	s.False(s.challenges.verifyCalled)
}

func (s *HandlerSuite) TestVerifyInvalidTokenFallsBackToChallenge() {
	s.tokens.enabled = true
	s.tokens.err = dErrors.New(dErrors.CodeUnauthorized, "token expired")
	s.challenges.address = "0xabc"
	s.issuance.responses = []credential.CredentialResponseBody{
		{Credential: &credential.Credential{}},
	}

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload:   credential.RequestPayload{Type: "ETHMaxi", Address: "0xabc"},
	}, map[string]string{"Authorization": "Bearer stale-token"})

	s.Equal(http.StatusOK, rec.Code)
	s.True(s.challenges.verifyCalled)
	s.Equal("0xabc", s.issuance.gotAddr)
}

func (s *HandlerSuite) TestVerifyFiltersEmptyTypes() {
	s.challenges.address = "0xabc"
	s.issuance.responses = []credential.CredentialResponseBody{
		{Credential: &credential.Credential{}},
	}

	rec := s.post("/verify", credential.VerifyRequestBody{
		Challenge: challengeCredential("challenge-ETHMaxi"),
		Payload: credential.RequestPayload{
			Type:    "ETHMaxi",
			Types:   []string{"", "ETHMaxi", ""},
			Address: "0xabc",
		},
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]string{"ETHMaxi"}, s.issuance.gotTypes)
}
