// Package provision acquires pinned toolchain versions for jobs.
//
// A directive like "python@3.8" resolves to a cached install directory; on
// a cache miss the toolchain is fetched once over HTTP from the configured
// source. The fetch is the single operation in the system allowed to block
// on network I/O, and it is never retried internally: a failed fetch fails
// the job with ProvisionError and retries belong to outer automation.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gantry-ci/gantry/internal/logging"
	"github.com/gantry-ci/gantry/pkg/domain"
)

// Provisioner implements ports.Provisioner with an on-disk version cache.
type Provisioner struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures the Provisioner.
type Option func(*Provisioner)

// WithBaseURL sets the toolchain download source.
func WithBaseURL(url string) Option {
	return func(p *Provisioner) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provisioner) {
		p.client = client
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// New creates a Provisioner caching installs under cacheDir.
func New(cacheDir string, opts ...Option) *Provisioner {
	p := &Provisioner{
		cacheDir: cacheDir,
		client:   http.DefaultClient,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision resolves a "tool@version" directive to a bin directory that the
// job prepends to its command path. Re-provisioning an already cached
// version is a no-op returning the same directory.
func (p *Provisioner) Provision(ctx context.Context, directive string) (string, error) {
	tool, version, ok := strings.Cut(directive, "@")
	if !ok || tool == "" || version == "" {
		return "", &domain.ProvisionError{
			Directive: directive,
			Err:       fmt.Errorf("directive must have the form tool@version"),
		}
	}

	installDir := filepath.Join(p.cacheDir, fmt.Sprintf("%s-%s", tool, version))
	binDir := filepath.Join(installDir, "bin")
	stamp := filepath.Join(installDir, ".complete")

	if _, err := os.Stat(stamp); err == nil {
		p.logger.Debug("toolchain cache hit", "tool", tool, "version", version)
		return binDir, nil
	}

	if p.baseURL == "" {
		return "", &domain.ProvisionError{Directive: directive, Err: fmt.Errorf("no toolchain source configured")}
	}

	p.logger.Info("fetching toolchain", "tool", tool, "version", version)
	if err := p.fetch(ctx, tool, version, binDir); err != nil {
		return "", &domain.ProvisionError{Directive: directive, Err: err}
	}

	if err := os.WriteFile(stamp, []byte(version+"\n"), 0o644); err != nil {
		return "", &domain.ProvisionError{Directive: directive, Err: err}
	}
	return binDir, nil
}

func (p *Provisioner) fetch(ctx context.Context, tool, version, binDir string) error {
	url := fmt.Sprintf("%s/%s-%s", p.baseURL, tool, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toolchain source returned %s for %s", resp.Status, url)
	}

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(binDir, tool)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.Close()
}
