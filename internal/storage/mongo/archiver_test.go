package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/harvester/internal/harvest"
)

type fakeCollection struct {
	docs []any
	err  error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc any, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{InsertedID: len(f.docs)}, nil
}

func savedDocument() harvest.SavedDocument {
	return harvest.SavedDocument{
		RunID:  "run-1",
		Prefix: "example_com",
		Document: &harvest.Document{
			Metadata: harvest.Metadata{
				URL:       "https://example.com",
				FetchedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				Title:     "Example",
			},
			Content: harvest.Content{
				Paragraphs: []string{"hello world"},
				Flow:       []harvest.Block{{Type: harvest.BlockParagraph, Text: "hello world"}},
			},
		},
		Paths: harvest.Paths{Record: "/x.json"},
	}
}

func TestArchiveInsertsRecord(t *testing.T) {
	coll := &fakeCollection{}
	archiver := NewWithCollection(coll, nil)

	require.NoError(t, archiver.Archive(context.Background(), savedDocument()))
	require.Len(t, coll.docs, 1)

	raw, err := bson.Marshal(coll.docs[0])
	require.NoError(t, err)
	doc := bson.Raw(raw)

	assert.Equal(t, "run-1", doc.Lookup("run_id").StringValue())
	assert.Equal(t, "/x.json", doc.Lookup("record_path").StringValue())
	assert.Equal(t, "https://example.com", doc.Lookup("metadata", "url").StringValue())
	assert.Equal(t, "Example", doc.Lookup("metadata", "title").StringValue())
	_, err = doc.LookupErr("table_path")
	assert.Error(t, err, "empty table path is omitted")
	_, err = doc.LookupErr("content", "flow")
	assert.Error(t, err, "flow is not stored")
}

func TestArchiveErrors(t *testing.T) {
	archiver := NewWithCollection(&fakeCollection{err: errors.New("no primary")}, nil)
	err := archiver.Archive(context.Background(), savedDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert document")

	assert.Error(t, archiver.Archive(context.Background(), harvest.SavedDocument{}))
	assert.NoError(t, archiver.Close(context.Background()))
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), Config{URI: "mongodb://localhost"}, nil)
	assert.Error(t, err)
}
