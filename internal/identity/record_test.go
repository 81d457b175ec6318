package identity

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type RecordSuite struct {
	suite.Suite
}

func TestRecordSuite(t *testing.T) {
	suite.Run(t, new(RecordSuite))
}

func (s *RecordSuite) TestCanonicalJSONSortsKeys() {
	record := Record{
		"type":    "Simple",
		"address": "0x0",
		"version": "Test-Case-1",
		"email":   "my_own@email.com",
	}

	canonical, err := record.CanonicalJSON()
	s.Require().NoError(err)
	s.Equal(
		`[["address","0x0"],["email","my_own@email.com"],["type","Simple"],["version","Test-Case-1"]]`,
		string(canonical),
	)
}

func (s *RecordSuite) TestCanonicalJSONIsStable() {
	a := Record{"b": "2", "a": "1", "c": "3"}
	b := Record{"c": "3", "a": "1", "b": "2"}

	ca, err := a.CanonicalJSON()
	s.Require().NoError(err)
	cb, err := b.CanonicalJSON()
	s.Require().NoError(err)

	s.Equal(string(ca), string(cb))
}

func (s *RecordSuite) TestCanonicalJSONDoesNotEscapeHTML() {
	record := Record{"url": "https://example.com/?a=1&b=<2>"}
	canonical, err := record.CanonicalJSON()
	s.Require().NoError(err)
	s.Contains(string(canonical), "https://example.com/?a=1&b=<2>")
}
