package cli

import (
	"fmt"
	"io"
	"log"
	"os"
)

// setupLogging sends the standard logger to stderr and, when path is set,
// appends to path as well. The returned func closes the file.
func setupLogging(path string) (func(), error) {
	if path == "" {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
