package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

type staticIDs struct {
	id  string
	err error
}

func (s staticIDs) NewID() (string, error) { return s.id, s.err }

func savedDocument() harvest.SavedDocument {
	now := time.Unix(1700000000, 0).UTC()
	return harvest.SavedDocument{
		RunID:  "run-1",
		Prefix: "example_com",
		Document: &harvest.Document{
			Metadata: harvest.Metadata{
				URL:         "https://example.com",
				FetchedAt:   now,
				Title:       "Example",
				ContentHash: "abc123",
				Mode:        harvest.ModeDirect,
			},
			Content: harvest.Content{
				Headings:   []harvest.Heading{{Level: 1, Tag: "h1", Text: "Hi"}},
				Paragraphs: []string{"one", "two"},
			},
		},
		Paths: harvest.Paths{Record: "/exports/a.json", Table: "/exports/a.xlsx"},
	}
}

func TestArchiveInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	archiver, err := NewWithPool(mock, "harvests", staticIDs{id: "uuid-v7"}, nil)
	require.NoError(t, err)

	saved := savedDocument()
	mock.ExpectExec("INSERT INTO harvests").
		WithArgs(
			"uuid-v7",
			"run-1",
			"https://example.com",
			"Example",
			"direct",
			saved.Document.Metadata.FetchedAt,
			"abc123",
			"/exports/a.json",
			"/exports/a.xlsx",
			1, 2, 0, 0,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, archiver.Archive(context.Background(), saved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	archiver, err := NewWithPool(mock, "", staticIDs{id: "x"}, nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO harvests").WillReturnError(errors.New("connection reset"))
	err = archiver.Archive(context.Background(), savedDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert catalog row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveRejectsMissingDocument(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	archiver, err := NewWithPool(mock, "", staticIDs{id: "x"}, nil)
	require.NoError(t, err)
	assert.Error(t, archiver.Archive(context.Background(), harvest.SavedDocument{}))

	archiver, err = NewWithPool(mock, "", staticIDs{err: errors.New("entropy")}, nil)
	require.NoError(t, err)
	assert.Error(t, archiver.Archive(context.Background(), savedDocument()))
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "", staticIDs{}, nil)
	assert.Error(t, err)
	_, err = NewWithPool(mock, "", nil, nil)
	assert.Error(t, err)
	_, err = NewWithPool(mock, "harvests; DROP TABLE x", staticIDs{}, nil)
	assert.ErrorContains(t, err, "invalid table name")
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, staticIDs{}, nil)
	assert.Error(t, err)
	_, err = New(context.Background(), Config{DSN: "postgres://x", Table: "bad-name"}, staticIDs{}, nil)
	assert.ErrorContains(t, err, "invalid table name")
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	assert.Error(t, Migrate(context.Background(), ""))
	assert.NoError(t, RunMigrations(context.Background(), nil))
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	body, err := migrationFiles.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+DefaultTable)
}
