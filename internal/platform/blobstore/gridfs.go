package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const gridFSBucketName = "photos"

// GridFSBlobStore keeps blobs in a MongoDB GridFS bucket. Ids are ObjectID
// hex strings.
type GridFSBlobStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

type gridFileMeta struct {
	ContentType string `bson:"content_type"`
	SHA256      string `bson:"sha256"`
	CreatedBy   string `bson:"created_by,omitempty"`
}

// NewGridFSBlobStore connects to uri and verifies the server is reachable.
func NewGridFSBlobStore(ctx context.Context, uri, database string) (*GridFSBlobStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("clinic-server"))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(gridFSBucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSBlobStore{client: client, bucket: bucket}, nil
}

func (s *GridFSBlobStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *GridFSBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}

	opts := options.GridFSUpload().SetMetadata(gridFileMeta{
		ContentType: meta.ContentType,
		SHA256:      meta.Hash,
		CreatedBy:   meta.CreatedBy,
	})
	oid, err := s.bucket.UploadFromStream(meta.FileName, bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("gridfs upload: %w", err)
	}

	meta.ID = oid.Hex()
	meta.CreatedAt = oid.Timestamp().UTC()
	return &meta, nil
}

func (s *GridFSBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, ErrBlobNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("gridfs open: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(deadline)
	}

	meta, err := fileToMetadata(stream.GetFile())
	if err != nil {
		stream.Close()
		return nil, nil, err
	}
	return stream, meta, nil
}

func (s *GridFSBlobStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrBlobNotFound
	}
	if err := s.bucket.DeleteContext(ctx, oid); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("gridfs delete: %w", err)
	}
	return nil
}

func (s *GridFSBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrBlobNotFound
	}

	cur, err := s.bucket.FindContext(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, fmt.Errorf("gridfs find: %w", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("gridfs find: %w", err)
		}
		return nil, ErrBlobNotFound
	}
	var f gridfs.File
	if err := cur.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode gridfs file: %w", err)
	}
	return fileToMetadata(&f)
}

func fileToMetadata(f *gridfs.File) (*BlobMetadata, error) {
	var gm gridFileMeta
	if len(f.Metadata) > 0 {
		if err := bson.Unmarshal(f.Metadata, &gm); err != nil {
			return nil, fmt.Errorf("decode gridfs metadata: %w", err)
		}
	}

	m := &BlobMetadata{
		FileName:    f.Name,
		ContentType: gm.ContentType,
		Size:        f.Length,
		Hash:        gm.SHA256,
		CreatedAt:   f.UploadDate.UTC(),
		CreatedBy:   gm.CreatedBy,
	}
	if oid, ok := f.ID.(primitive.ObjectID); ok {
		m.ID = oid.Hex()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m, nil
}
