// Package preview follows the single JPEG frame an engine rewrites once a
// second and keeps the latest complete copy of it in memory.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"
)

// MinFrameBytes is the smallest file accepted as a frame. The engine
// truncates the file before each rewrite, so shorter reads are in flight.
const MinFrameBytes = 1024

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// ErrIncomplete is returned for files that are not yet a whole JPEG.
var ErrIncomplete = errors.New("preview frame incomplete")

// Frame is one complete preview image.
type Frame struct {
	Data      []byte
	UpdatedAt time.Time
}

// Size returns the frame length in bytes.
func (f Frame) Size() int64 {
	return int64(len(f.Data))
}

// Valid reports whether data is a whole JPEG: at least MinFrameBytes long,
// starting with the SOI marker and ending with the EOI marker.
func Valid(data []byte) bool {
	return len(data) >= MinFrameBytes &&
		bytes.HasPrefix(data, jpegStart) &&
		bytes.HasSuffix(data, jpegEnd)
}

// ReadFrame reads path into memory and validates it.
func ReadFrame(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !Valid(data) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrIncomplete, path, len(data))
	}
	return data, nil
}
