package remote

import (
	"context"
	"fmt"

	"vj-go/internal/config"
	"vj-go/internal/dropbox"
	"vj-go/internal/vj"
)

// Deps carries what some backends need beyond their configuration.
type Deps struct {
	Clock  vj.Clock
	Logger vj.Logger
	Tokens dropbox.TokenStore // required for type dropbox
}

// NewRemoteStoreFromConfig creates a RemoteStore implementation based on the remote config type.
func NewRemoteStoreFromConfig(ctx context.Context, cfg config.RemoteConfig, deps Deps) (vj.RemoteStore, error) {
	switch cfg.Type {
	case "dropbox", "":
		if cfg.AppKey == "" {
			return nil, fmt.Errorf("dropbox remote requires app_key to be set")
		}
		if deps.Tokens == nil {
			return nil, fmt.Errorf("dropbox remote requires a token store")
		}
		var opts []dropbox.Option
		if deps.Logger != nil {
			opts = append(opts, dropbox.WithLogger(deps.Logger))
		}
		client, err := dropbox.NewClientFromStore(ctx, dropbox.OAuthConfig(cfg.AppKey), deps.Tokens, opts...)
		if err != nil {
			return nil, fmt.Errorf("connecting to dropbox: %w", err)
		}
		return client, nil
	case "memory":
		return NewMemoryRemote(cfg.Name, deps.Clock), nil
	case "s3":
		return NewS3RemoteFromConfig(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemRemote(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
