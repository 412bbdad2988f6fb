package storage

import (
	"fmt"
	"strings"
)

// Config selects and configures the archive storage backend.
type Config struct {
	Type     string // "local" or "s3"
	LocalDir string

	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration with the backend type and its settings.
//
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the backend cannot be created.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
