package extract

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"docindex/internal/domain"
)

// PlainText passes UTF-8 text through unchanged.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, data []byte, filename string) (string, error) {
	text, err := decodeText(data, filename)
	if err != nil {
		return "", err
	}
	return text, nil
}

// decodeText validates data as UTF-8 text, dropping a leading BOM.
func decodeText(data []byte, filename string) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, filename)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %s looks like a binary file", domain.ErrExtraction, filename)
	}
	return string(data), nil
}
