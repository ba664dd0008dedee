package port

import "context"

// Extractor turns raw file bytes into plain text.
// Failures must wrap domain.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}
