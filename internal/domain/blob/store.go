// internal/domain/blob/store.go

package blob

import (
	"context"
)

// Store uploads binary objects and returns their public URL
type Store interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}
