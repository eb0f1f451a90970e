package imagestore

import (
	"context"
	"fmt"

	"github.com/placebook/placebook/internal/config"
)

// Open builds the image store selected by cfg.Backend. The second result
// is non-nil only for the S3 backend and serves health checks.
func Open(ctx context.Context, cfg config.ImagesConfig) (Store, *S3, error) {
	opts := Options{MaxBytes: cfg.MaxBytes, MaxWidth: cfg.MaxWidth}
	switch cfg.Backend {
	case config.ImagesS3:
		s3Store, err := NewS3FromRegion(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix, opts)
		if err != nil {
			return nil, nil, err
		}
		return s3Store, s3Store, nil
	case config.ImagesLocal, "":
		local, err := NewLocal(cfg.Dir, opts)
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown images backend %q", cfg.Backend)
	}
}
