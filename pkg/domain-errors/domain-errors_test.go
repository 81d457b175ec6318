package domainerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// These are used at every trust boundary of the engine; the 401-class vs
// 500-class distinction in the challenge protocol depends on codes surviving
// wrapping intact.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeUnauthorized, Message: "invalid challenge signature"}
		s.Equal("invalid challenge signature", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeConfiguration}
		s.Equal("configuration_error", err.Error())
	})
}

func (s *DomainErrorsSuite) TestUnwrap() {
	inner := errors.New("boom")
	err := Wrap(inner, CodeSigning, "unable to sign credential")
	s.ErrorIs(err, inner)
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	err := New(CodeKeyOrder, "version 2 start time must be after version 1")
	s.ErrorIs(err, &Error{Code: CodeKeyOrder})
	s.NotErrorIs(err, &Error{Code: CodeConfiguration})
}

func (s *DomainErrorsSuite) TestWrapPreservesOriginalCode() {
	inner := New(CodeUnauthorized, "signer mismatch")
	wrapped := Wrap(inner, CodeInternal, "challenge rejected")

	s.True(HasCode(wrapped, CodeUnauthorized))
	s.False(HasCode(wrapped, CodeInternal))
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeProviderExternal, "upstream down"), CodeProviderExternal))
	s.False(HasCode(errors.New("plain"), CodeProviderExternal))
	s.False(HasCode(nil, CodeProviderExternal))
}
