package calendar

import (
	"context"
	"time"

	"github.com/rewired-gh/econoracle/internal/classifier"
)

// FileSource serves events from a static feed file, re-read on every fetch so
// the file can be replaced while the service runs.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchEvents loads the file and keeps the events scheduled within [from, to].
func (s *FileSource) FetchEvents(ctx context.Context, from, to time.Time) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}
	result, err := LoadFile(s.path)
	if err != nil {
		return FetchResult{}, err
	}
	result.Events = classifier.ByTimeWindow(result.Events, from, to)
	return result, nil
}
