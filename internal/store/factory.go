package store

import (
	"fmt"

	"github.com/rlanders/dr-restore-utility/internal/config"
)

// NewRemote builds the remote store from config. A nil Remote means no
// remote source is configured; resolvers and catalogs treat that as an
// always-empty source.
func NewRemote(cfg config.RemoteStoreConfig) (Remote, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote endpoint is set but bucket is empty")
	}
	return NewS3(cfg)
}
