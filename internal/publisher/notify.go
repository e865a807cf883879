// Package publisher announces saved documents to downstream consumers.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Publisher sends one payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the message published for every saved document.
type Notification struct {
	RunID       string       `json:"run_id"`
	Site        string       `json:"site"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Mode        harvest.Mode `json:"mode"`
	FetchedAt   time.Time    `json:"fetched_at"`
	ContentHash string       `json:"content_hash,omitempty"`
	RecordPath  string       `json:"record_path"`
	TablePath   string       `json:"table_path,omitempty"`
}

// NewNotification summarizes saved.
func NewNotification(saved harvest.SavedDocument) Notification {
	n := Notification{
		RunID:      saved.RunID,
		Site:       saved.Prefix,
		RecordPath: saved.Paths.Record,
		TablePath:  saved.Paths.Table,
	}
	if doc := saved.Document; doc != nil {
		n.URL = doc.Metadata.URL
		n.Title = doc.Metadata.Title
		n.Mode = doc.Metadata.Mode
		n.FetchedAt = doc.Metadata.FetchedAt
		n.ContentHash = doc.Metadata.ContentHash
	}
	return n
}

// Archiver adapts a Publisher to harvest.Archiver.
type Archiver struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewArchiver publishes a Notification to topic for every saved document.
func NewArchiver(p Publisher, topic string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{publisher: p, topic: topic, logger: logger.Named("notify")}
}

// Archive publishes the notification for saved.
func (a *Archiver) Archive(ctx context.Context, saved harvest.SavedDocument) error {
	if a.publisher == nil {
		return fmt.Errorf("publisher is not configured")
	}
	id, err := a.publisher.Publish(ctx, a.topic, NewNotification(saved))
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	a.logger.Debug("notification published", zap.String("message_id", id), zap.String("topic", a.topic))
	return nil
}
