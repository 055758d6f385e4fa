package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	exportContentType = "application/json"
	exportPrefix      = "exports/"
)

// exportName matches the file names ExportUsers produces.
var exportName = regexp.MustCompile(`^users-\d{8}T\d{6}Z-[0-9a-f]{8}\.json$`)

// ObjectStore reads and writes objects in a bucket. Get and Delete must
// report a missing key as ErrExportNotFound.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// ExportResult describes an uploaded user export.
type ExportResult struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Count      int       `json:"count"`
	Size       int64     `json:"size"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportUsers writes every user, without password hashes, as a JSON array
// to the configured object store.
func (s *AccountService) ExportUsers(ctx context.Context) (ExportResult, error) {
	if s.exports == nil {
		return ExportResult{}, ErrExportsDisabled
	}

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list users: %w", err)
	}
	data, err := json.Marshal(users)
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode users: %w", err)
	}

	now := s.now().UTC()
	key := exportKey(now)
	if err := s.exports.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return ExportResult{}, fmt.Errorf("upload export: %w", err)
	}

	result := ExportResult{
		Bucket:     s.exports.Bucket(),
		Key:        key,
		Count:      len(users),
		Size:       int64(len(data)),
		ExportedAt: now,
	}
	s.logger.WithFields(logrus.Fields{
		"bucket": result.Bucket,
		"key":    result.Key,
		"count":  result.Count,
	}).Info("user export uploaded")
	return result, nil
}

// OpenExport streams a previous export by its file name, as returned in the
// ExportResult key after the "exports/" prefix.
func (s *AccountService) OpenExport(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.exportObjectKey(name)
	if err != nil {
		return nil, err
	}
	return s.exports.Get(ctx, key)
}

// DeleteExport removes a previous export by its file name.
func (s *AccountService) DeleteExport(ctx context.Context, name string) error {
	key, err := s.exportObjectKey(name)
	if err != nil {
		return err
	}
	if err := s.exports.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.WithField("key", key).Info("user export deleted")
	return nil
}

func (s *AccountService) exportObjectKey(name string) (string, error) {
	if s.exports == nil {
		return "", ErrExportsDisabled
	}
	if !exportName.MatchString(name) {
		return "", fmt.Errorf("%w: unknown export name", ErrInvalidInput)
	}
	return exportPrefix + name, nil
}

func exportKey(at time.Time) string {
	return fmt.Sprintf("%susers-%s-%s.json", exportPrefix, at.Format("20060102T150405Z"), uuid.NewString()[:8])
}
