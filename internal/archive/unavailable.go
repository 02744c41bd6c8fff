package archive

import (
	"context"
	"fmt"
)

// Unavailable stands in when the archive could not be built at startup, so
// the service still boots and uploads fail with the original reason.
type Unavailable struct {
	Err error
}

func (u Unavailable) Upload(ctx context.Context, path, name, mimeType, folderID string) (string, error) {
	return "", fmt.Errorf("archive unavailable: %w", u.Err)
}

func (u Unavailable) ViewURL(id string) string {
	return ""
}
