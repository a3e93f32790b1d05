package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docchat-platform/internal/apperrors"
)

// GridFSStore keeps blobs in a MongoDB GridFS bucket, sharing the
// deployment's existing database with the vector collection.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

type gridFSFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Filename   string             `bson:"filename"`
	Length     int64              `bson:"length"`
	UploadDate primitive.DateTime `bson:"uploadDate"`
	Metadata   bson.M             `bson:"metadata"`
}

func NewGridFSStore(db *mongo.Database) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("blobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket: %w", err)
	}
	return &GridFSStore{bucket: bucket}, nil
}

func (s *GridFSStore) Put(ctx context.Context, pathname string, data []byte, contentType string) (BlobInfo, error) {
	// Put overwrites: drop any existing file at the same pathname first.
	if existing, err := s.find(ctx, pathname); err == nil {
		_ = s.bucket.Delete(existing.ID)
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	_, err := s.bucket.UploadFromStream(pathname, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return BlobInfo{}, &apperrors.StorageError{Backend: "blob", Op: "put", Err: err}
	}

	file, err := s.find(ctx, pathname)
	if err != nil {
		return BlobInfo{}, &apperrors.StorageError{Backend: "blob", Op: "put", Err: err}
	}
	return fileInfo(file), nil
}

func (s *GridFSStore) Get(ctx context.Context, pathname string) ([]byte, error) {
	stream, err := s.bucket.OpenDownloadStreamByName(pathname)
	if err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, ErrBlobNotFound
		}
		return nil, &apperrors.StorageError{Backend: "blob", Op: "get", Err: err}
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, &apperrors.StorageError{Backend: "blob", Op: "get", Err: err}
	}
	return data, nil
}

func (s *GridFSStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["filename"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}

	cursor, err := s.bucket.Find(filter)
	if err != nil {
		return nil, &apperrors.StorageError{Backend: "blob", Op: "list", Err: err}
	}
	defer cursor.Close(ctx)

	var infos []BlobInfo
	for cursor.Next(ctx) {
		var file gridFSFile
		if err := cursor.Decode(&file); err != nil {
			continue
		}
		infos = append(infos, fileInfo(file))
	}
	if err := cursor.Err(); err != nil {
		return nil, &apperrors.StorageError{Backend: "blob", Op: "list", Err: err}
	}
	return infos, nil
}

func (s *GridFSStore) Head(ctx context.Context, pathname string) (BlobInfo, error) {
	file, err := s.find(ctx, pathname)
	if err != nil {
		return BlobInfo{}, err
	}
	return fileInfo(file), nil
}

func (s *GridFSStore) Delete(ctx context.Context, url string) error {
	pathname := PathnameFromURL(url)
	file, err := s.find(ctx, pathname)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(file.ID); err != nil {
		return &apperrors.StorageError{Backend: "blob", Op: "delete", Err: err}
	}
	return nil
}

func (s *GridFSStore) find(ctx context.Context, pathname string) (gridFSFile, error) {
	cursor, err := s.bucket.Find(bson.M{"filename": pathname})
	if err != nil {
		return gridFSFile{}, &apperrors.StorageError{Backend: "blob", Op: "find", Err: err}
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return gridFSFile{}, ErrBlobNotFound
	}
	var file gridFSFile
	if err := cursor.Decode(&file); err != nil {
		return gridFSFile{}, &apperrors.StorageError{Backend: "blob", Op: "find", Err: err}
	}
	return file, nil
}

func fileInfo(file gridFSFile) BlobInfo {
	contentType := ""
	if ct, ok := file.Metadata["contentType"].(string); ok {
		contentType = ct
	}
	return BlobInfo{
		Pathname:    file.Filename,
		URL:         URLFor(file.Filename),
		Size:        file.Length,
		ContentType: contentType,
		UploadedAt:  file.UploadDate.Time(),
	}
}
