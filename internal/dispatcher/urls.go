package dispatcher

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const maxLineBytes = 1 << 20

// ReadURLs loads a newline-delimited URL list. Lines are trimmed and blank
// lines skipped; order is preserved.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied input list
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var urls []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}
