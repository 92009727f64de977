package history_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tmpim/kabe/history"
)

type HistorySuite struct {
	suite.Suite
	path  string
	store *history.Store
}

func (s *HistorySuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "db", "history.db")

	store, err := history.Open(s.path)
	require.NoError(s.T(), err)
	s.store = store
}

func (s *HistorySuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *HistorySuite) record(name, script string) history.Entry {
	e, err := s.store.Record(context.Background(), history.Entry{
		Name:     name,
		Size:     2,
		Commands: strings.Count(script, "\n") + 1,
		Script:   script,
	})
	s.Require().NoError(err)
	return e
}

func (s *HistorySuite) TestRecordAndGet() {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 30, 0, 500, time.UTC)

	script := "setblock ~3 ~1 ~0 minecraft:stone\nsetblock ~3 ~1 ~1 minecraft:lava"
	e, err := s.store.Record(ctx, history.Entry{
		CreatedAt: created,
		Name:      "cat.png",
		Size:      2,
		Commands:  2,
		Script:    script,
	})
	s.Require().NoError(err)
	s.NotZero(e.ID)
	s.Equal(history.Digest(script), e.Digest)
	s.Empty(e.Script)

	got, err := s.store.Get(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal("cat.png", got.Name)
	s.Equal(2, got.Commands)
	s.True(created.Equal(got.CreatedAt), "got %v", got.CreatedAt)

	stored, err := s.store.Script(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(script, stored)
}

func (s *HistorySuite) TestList() {
	for i := 0; i < 5; i++ {
		s.record(fmt.Sprintf("img%d.png", i), "setblock ~3 ~1 ~0 minecraft:stone")
	}

	entries, err := s.store.List(context.Background(), 3)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("img4.png", entries[0].Name)
	s.Equal("img2.png", entries[2].Name)

	entries, err = s.store.List(context.Background(), 0)
	s.Require().NoError(err)
	s.Len(entries, 5)
}

func (s *HistorySuite) TestNotFound() {
	_, err := s.store.Get(context.Background(), 42)
	s.ErrorIs(err, history.ErrNotFound)

	_, err = s.store.Script(context.Background(), 42)
	s.ErrorIs(err, history.ErrNotFound)
}

func (s *HistorySuite) TestCorruptDigest() {
	e := s.record("tampered.png", "setblock ~3 ~1 ~0 minecraft:stone")

	db, err := sql.Open("sqlite", s.path)
	s.Require().NoError(err)
	_, err = db.Exec(`UPDATE conversions SET digest = 'deadbeef' WHERE id = ?`, e.ID)
	s.Require().NoError(err)
	s.Require().NoError(db.Close())

	_, err = s.store.Script(context.Background(), e.ID)
	s.ErrorIs(err, history.ErrCorrupt)
}

func (s *HistorySuite) TestReopen() {
	e := s.record("persist.png", "setblock ~3 ~1 ~0 minecraft:water")
	s.Require().NoError(s.store.Close())

	store, err := history.Open(s.path)
	s.Require().NoError(err)
	s.store = store

	script, err := s.store.Script(context.Background(), e.ID)
	s.Require().NoError(err)
	s.Equal("setblock ~3 ~1 ~0 minecraft:water", script)
}

func TestHistorySuite(t *testing.T) {
	suite.Run(t, new(HistorySuite))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := history.Open("")
	assert.Error(t, err)
}
