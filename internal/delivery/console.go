package delivery

import (
	"context"
	"fmt"
	"io"
	"time"

	"news_digest/internal/model"
)

// Console prints the digest as plain text.
type Console struct {
	w   io.Writer
	now func() time.Time
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, now: time.Now}
}

// Send writes the digest to the console.
func (c *Console) Send(_ context.Context, _ string, digest []model.DigestEntry) error {
	if len(digest) == 0 {
		return nil
	}
	if _, err := io.WriteString(c.w, FormatText(digest, c.now())); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	return nil
}
