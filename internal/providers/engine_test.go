package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"stampd/contracts/credential"
)

type stubProvider struct {
	typ string
	fn  func(ctx context.Context, req Request, pctx *Context) (*VerifiedPayload, error)
}

func (p *stubProvider) Type() string { return p.typ }

func (p *stubProvider) Verify(ctx context.Context, req Request, pctx *Context) (*VerifiedPayload, error) {
	return p.fn(ctx, req, pctx)
}

func valid(record map[string]string) func(context.Context, Request, *Context) (*VerifiedPayload, error) {
	return func(context.Context, Request, *Context) (*VerifiedPayload, error) {
		return &VerifiedPayload{Valid: true, Record: record}, nil
	}
}

type EngineSuite struct {
	suite.Suite

	registry *Registry
	engine   *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.registry = NewRegistry()
	s.engine = NewEngine(s.registry, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func (s *EngineSuite) payload() credential.RequestPayload {
	return credential.RequestPayload{Address: "0xabc"}
}

func (s *EngineSuite) TestResultsPreserveRequestOrder() {
	s.registry.MustRegister("alpha", &stubProvider{typ: "A1", fn: valid(nil)})
	s.registry.MustRegister("beta", &stubProvider{typ: "B1", fn: valid(nil)})
	s.registry.MustRegister("alpha", &stubProvider{typ: "A2", fn: valid(nil)})

	results := s.engine.VerifyTypes(context.Background(), []string{"B1", "A1", "A2"}, s.payload())

	s.Require().Len(results, 3)
	s.Equal("B1", results[0].Type)
	s.Equal("A1", results[1].Type)
	s.Equal("A2", results[2].Type)
	for _, r := range results {
		s.Require().NotNil(r.Result)
		s.True(r.Result.Valid)
	}
}

// One provider failing must not disturb its siblings' results.
func (s *EngineSuite) TestProviderFailureIsolated() {
	s.registry.MustRegister("alpha", &stubProvider{typ: "Good", fn: valid(map[string]string{"score": "1"})})
	s.registry.MustRegister("beta", &stubProvider{
		typ: "Broken",
		fn: func(context.Context, Request, *Context) (*VerifiedPayload, error) {
			return nil, errors.New("upstream exploded")
		},
	})

	results := s.engine.VerifyTypes(context.Background(), []string{"Good", "Broken"}, s.payload())

	s.Require().Len(results, 2)
	s.True(results[0].Result.Valid)
	s.Empty(results[0].Error)

	s.False(results[1].Result.Valid)
	s.Equal(http.StatusBadRequest, results[1].Code)
	s.Equal("unable to verify provider", results[1].Error)
}

func (s *EngineSuite) TestProviderPanicIsolated() {
	s.registry.MustRegister("alpha", &stubProvider{typ: "Good", fn: valid(nil)})
	s.registry.MustRegister("beta", &stubProvider{
		typ: "Panics",
		fn: func(context.Context, Request, *Context) (*VerifiedPayload, error) {
			panic("boom")
		},
	})

	results := s.engine.VerifyTypes(context.Background(), []string{"Panics", "Good"}, s.payload())

	s.Equal(http.StatusBadRequest, results[0].Code)
	s.False(results[0].Result.Valid)
	s.True(results[1].Result.Valid)
}

func (s *EngineSuite) TestInvalidOutcomeCarriesErrors() {
	s.registry.MustRegister("alpha", &stubProvider{
		typ: "Strict",
		fn: func(context.Context, Request, *Context) (*VerifiedPayload, error) {
			return &VerifiedPayload{Valid: false, Errors: []string{"balance too low", "account too new"}}, nil
		},
	})

	results := s.engine.VerifyTypes(context.Background(), []string{"Strict"}, s.payload())

	s.Equal(http.StatusForbidden, results[0].Code)
	s.Equal("balance too low, account too new", results[0].Error)
}

func (s *EngineSuite) TestUnknownTypeIsPerTypeFailure() {
	s.registry.MustRegister("alpha", &stubProvider{typ: "Known", fn: valid(nil)})

	results := s.engine.VerifyTypes(context.Background(), []string{"Known", "Ghost"}, s.payload())

	s.True(results[0].Result.Valid)
	s.Equal(http.StatusBadRequest, results[1].Code)
	s.Contains(results[1].Error, "no provider registered")
}

func (s *EngineSuite) TestParameterizedTypeResolution() {
	var gotParam, gotType string
	s.registry.MustRegister("lists", &stubProvider{
		typ: "AllowList",
		fn: func(_ context.Context, req Request, _ *Context) (*VerifiedPayload, error) {
			gotParam = req.Param
			gotType = req.Type
			return &VerifiedPayload{Valid: true}, nil
		},
	})

	results := s.engine.VerifyTypes(context.Background(), []string{"AllowList#earlyAdopters"}, s.payload())

	s.True(results[0].Result.Valid)
	s.Equal("earlyAdopters", gotParam)
	s.Equal("AllowList#earlyAdopters", gotType)
}

// Providers within one request sharing a memoized lookup must trigger the
// underlying call exactly once.
func (s *EngineSuite) TestContextLookupAtMostOncePerRequest() {
	var calls atomic.Int64
	shared := func(ctx context.Context, _ Request, pctx *Context) (*VerifiedPayload, error) {
		score, err := Lookup(ctx, pctx, "score", func(context.Context) (int, error) {
			calls.Add(1)
			return 42, nil
		})
		if err != nil {
			return nil, err
		}
		return &VerifiedPayload{Valid: score > 0}, nil
	}

	s.registry.MustRegister("scores", &stubProvider{typ: "T1", fn: shared})
	s.registry.MustRegister("scores", &stubProvider{typ: "T2", fn: shared})
	s.registry.MustRegister("scores", &stubProvider{typ: "T3", fn: shared})

	results := s.engine.VerifyTypes(context.Background(), []string{"T1", "T2", "T3"}, s.payload())

	for _, r := range results {
		s.True(r.Result.Valid)
	}
	s.Equal(int64(1), calls.Load())
}

// Separate requests never share a context.
func (s *EngineSuite) TestContextIsPerRequest() {
	var calls atomic.Int64
	s.registry.MustRegister("scores", &stubProvider{
		typ: "T1",
		fn: func(ctx context.Context, _ Request, pctx *Context) (*VerifiedPayload, error) {
			_, err := Lookup(ctx, pctx, "score", func(context.Context) (int, error) {
				calls.Add(1)
				return 1, nil
			})
			return &VerifiedPayload{Valid: true}, err
		},
	})

	s.engine.VerifyTypes(context.Background(), []string{"T1"}, s.payload())
	s.engine.VerifyTypes(context.Background(), []string{"T1"}, s.payload())

	s.Equal(int64(2), calls.Load())
}

func (s *EngineSuite) TestGroupByPlatform() {
	s.registry.MustRegister("alpha", &stubProvider{typ: "A1", fn: valid(nil)})
	s.registry.MustRegister("alpha", &stubProvider{typ: "A2", fn: valid(nil)})
	s.registry.MustRegister("beta", &stubProvider{typ: "B1", fn: valid(nil)})

	groups := s.engine.GroupByPlatform([]string{"A1", "B1", "A2", "Unknown"})

	s.Equal([][]string{{"A1", "A2"}, {"B1"}, {"Unknown"}}, groups)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("alpha", &stubProvider{typ: "A", fn: valid(nil)}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("beta", &stubProvider{typ: "A", fn: valid(nil)}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestContextMemoizesErrors(t *testing.T) {
	pctx := NewContext(nil)
	var calls int

	for range 2 {
		_, err := Lookup(context.Background(), pctx, "k", func(context.Context) (string, error) {
			calls++
			return "", errors.New("upstream down")
		})
		if err == nil {
			t.Fatal("expected memoized error")
		}
	}

	if calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls)
	}
}
