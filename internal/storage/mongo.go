package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pagepress/internal/models"
)

type MongoConfig struct {
	URI      string
	Database string
	Bucket   string
	Timeout  time.Duration
}

// MongoSink stores artifacts in a GridFS bucket, with filename, MIME type,
// size and source URLs as file metadata.
type MongoSink struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	timeout time.Duration
}

func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("storage: connect to MongoDB: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage: ping MongoDB: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(cfg.Database), options.GridFSBucket().SetName(cfg.Bucket))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage: open bucket %s: %w", cfg.Bucket, err)
	}
	return &MongoSink{client: client, bucket: bucket, timeout: cfg.Timeout}, nil
}

func (s *MongoSink) Persist(ctx context.Context, a models.Artifact) error {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.bucket.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	opts := options.GridFSUpload().SetMetadata(artifactMetadata(a))
	if _, err := s.bucket.UploadFromStream(a.Filename, bytes.NewReader(a.Data), opts); err != nil {
		return fmt.Errorf("storage: upload %s: %w", a.Filename, err)
	}
	return nil
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func artifactMetadata(a models.Artifact) bson.M {
	size := a.Size
	if len(a.Data) > 0 {
		size = len(a.Data)
	}
	return bson.M{
		"mime_type":   a.MimeType,
		"size":        size,
		"source_urls": a.SourceURLs,
		"too_large":   a.TooLarge,
		"stored_at":   time.Now().UTC(),
	}
}
