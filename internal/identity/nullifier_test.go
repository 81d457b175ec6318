package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stampd/internal/keys"
)

type NullifierSuite struct {
	suite.Suite
}

func TestNullifierSuite(t *testing.T) {
	suite.Run(t, new(NullifierSuite))
}

func (s *NullifierSuite) TestGenerateMatchesDerivation() {
	const key = "SAMPLE_KEY"
	record := Record{
		"type":    "Simple",
		"version": "Test-Case-1",
		"address": "0x0",
	}

	gen := NewNullifierGenerator(keys.Version{Secret: key, Version: "1"})
	got, err := gen.Generate(record)
	s.Require().NoError(err)

	canonical, err := record.CanonicalJSON()
	s.Require().NoError(err)
	h := sha256.Sum256(append([]byte(key), canonical...))
	want := "v1:" + base64.StdEncoding.EncodeToString(h[:])

	s.Equal(want, got)
}

func (s *NullifierSuite) TestGenerateIsDeterministic() {
	gen := NewNullifierGenerator(keys.Version{Secret: "k", Version: "2"})

	first, err := gen.Generate(Record{"a": "1", "b": "2"})
	s.Require().NoError(err)
	second, err := gen.Generate(Record{"b": "2", "a": "1"})
	s.Require().NoError(err)

	s.Equal(first, second)
}

func (s *NullifierSuite) TestDifferentKeysDiverge() {
	record := Record{"type": "Simple"}

	a, err := NewNullifierGenerator(keys.Version{Secret: "k1", Version: "1"}).Generate(record)
	s.Require().NoError(err)
	b, err := NewNullifierGenerator(keys.Version{Secret: "k2", Version: "1"}).Generate(record)
	s.Require().NoError(err)

	s.NotEqual(a, b)
}

func (s *NullifierSuite) TestLegacyPrefix() {
	gen := NewNullifierGenerator(keys.Version{Secret: "k", Version: keys.LegacyVersion})
	s.True(gen.Legacy())

	got, err := gen.Generate(Record{"type": "Simple"})
	s.Require().NoError(err)
	s.Regexp(`^v0\.0\.0:`, got)
}

func (s *NullifierSuite) TestGeneratorsForActiveWindow() {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := keys.NewManager([]keys.Version{
		{Secret: "k1", StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Version: "1"},
		{Secret: "k2", StartTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Version: "2"},
		{Secret: "k3", StartTime: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), Version: "3"},
	})

	set, err := m.Versions(now)
	s.Require().NoError(err)

	gens := GeneratorsFor(set)
	s.Require().Len(gens, 2)

	record := Record{"type": "Simple"}
	a, err := gens[0].Generate(record)
	s.Require().NoError(err)
	b, err := gens[1].Generate(record)
	s.Require().NoError(err)

	s.Regexp(`^v2:`, a)
	s.Regexp(`^v3:`, b)
}
