// Package export renders published jobs for crawlers and downloads: the
// detail page, its PDF and the sitemap.
package export

import (
	"errors"
	"fmt"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the job could not be loaded or rendered
	// for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

func contentUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrContentUnavailable, err)
}
