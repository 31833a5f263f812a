package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4
	defaultMaxBytes    = 64 << 20

	errBadStatus  = "unexpected status: %s"
	errTooLarge   = "body exceeds %d bytes"
	errBadScheme  = "unsupported scheme %q"
	errSourceWrap = "%w: %s: %w"
)

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds each HTTP fetch.
	Timeout time.Duration
	// Concurrency bounds how many sources are fetched at once.
	Concurrency int
	// MaxBytes caps the size of one source.
	MaxBytes int64
	// UserAgent is sent with HTTP requests.
	UserAgent string
	// Client is injectable for tests; built from Timeout when nil.
	Client *http.Client
	Logger log.Logger
}

// Fetcher retrieves filter-list text from http(s) URLs, file URLs and paths.
type Fetcher struct {
	client      *http.Client
	concurrency int
	maxBytes    int64
	userAgent   string
	logger      log.Logger
}

// New builds a Fetcher, filling defaults for unset options.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Fetcher{
		client:      opts.Client,
		concurrency: opts.Concurrency,
		maxBytes:    opts.MaxBytes,
		userAgent:   opts.UserAgent,
		logger:      opts.Logger,
	}
}

// Fetch retrieves every locator in parallel and returns the sources that
// succeeded, in locator order. Per-source failures are combined into the
// returned error, each wrapping domain.ErrSourceFetch; they never cancel the
// other fetches. Only a canceled ctx makes the whole call fail.
func (f *Fetcher) Fetch(ctx context.Context, locators []string) ([]domain.RawSource, error) {
	texts := make([]string, len(locators))
	errs := make([]error, len(locators))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, loc := range locators {
		g.Go(func() error {
			start := time.Now()
			text, err := f.fetchOne(ctx, loc)
			if err != nil {
				errs[i] = fmt.Errorf(errSourceWrap, domain.ErrSourceFetch, loc, err)
				f.logger.Warn(map[string]any{"source": loc, "error": err}, "Source fetch failed")
				return nil
			}
			texts[i] = text
			f.logger.Debug(map[string]any{"source": loc, "bytes": len(text), "elapsed": time.Since(start).String()}, "fetch_done")
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var combined error
	out := make([]domain.RawSource, 0, len(locators))
	for i, loc := range locators {
		if errs[i] != nil {
			combined = multierr.Append(combined, errs[i])
			continue
		}
		src, err := domain.NewRawSource(loc, texts[i])
		if err != nil {
			combined = multierr.Append(combined, fmt.Errorf(errSourceWrap, domain.ErrSourceFetch, loc, err))
			continue
		}
		out = append(out, src)
	}
	return out, combined
}

func (f *Fetcher) fetchOne(ctx context.Context, loc string) (string, error) {
	loc = strings.TrimSpace(loc)
	if !strings.Contains(loc, "://") {
		return f.readFile(loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https":
		return f.get(ctx, u.String())
	case "file":
		return f.readFile(u.Path)
	default:
		return "", fmt.Errorf(errBadScheme, u.Scheme)
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(errBadStatus, resp.Status)
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) readFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) readLimited(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf(errTooLarge, f.maxBytes)
	}
	return string(data), nil
}
