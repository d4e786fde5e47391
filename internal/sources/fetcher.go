package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	maxResponseBytes = 10 << 20 // 10 MiB safety cap per source
	fetchConcurrency = 8
)

// Fetcher downloads candidate lists from plain-text HTTP sources. It is the
// external collaborator feeding the pipeline: one line per candidate, already
// deduplicated across sources.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchAll downloads every source concurrently and returns the union of
// their non-empty lines. A failing source is logged and skipped; the run
// continues with whatever the remaining sources produced. Zero sources or
// zero lines is a valid outcome.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fetchConcurrency)

	for _, url := range urls {
		group.Go(func() error {
			lines, err := f.fetchOne(groupCtx, url)
			if err != nil {
				log.Warn("Candidate source fetch failed", "source", url, "error", err)
				return nil
			}

			mu.Lock()
			for _, line := range lines {
				seen[line] = struct{}{}
			}
			mu.Unlock()

			log.Debug("Candidate source fetched", "source", url, "lines", len(lines))
			return nil
		})
	}
	_ = group.Wait()

	out := make([]string, 0, len(seen))
	for line := range seen {
		out = append(out, line)
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return splitLines(content), nil
}

func splitLines(payload []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
