package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/craftfall/anvil/iox"
	"github.com/craftfall/anvil/log"
	"github.com/craftfall/anvil/types"
)

// DefaultTimeout is the per-request timeout for metadata fetches.
const DefaultTimeout = 30 * time.Second

// maxMetadataSize caps metadata document size (64 MiB). Large asset
// indexes fit comfortably; artifact payloads never come through here.
const maxMetadataSize = 64 * 1024 * 1024

// Config configures a Resolver.
type Config struct {
	// Endpoints are the metadata service URLs. Empty fields fall
	// back to the upstream defaults.
	Endpoints Endpoints
	// HTTPClient overrides the HTTP client (for tests and proxies).
	HTTPClient *http.Client
	// Cache enables on-disk manifest caching. Nil disables caching.
	Cache *Cache
	// Logger receives resolution diagnostics. Nil means silent.
	Logger *log.Logger
}

// Resolver fetches remote version and loader metadata and turns it
// into loader manifests and artifact descriptors. It never downloads
// large artifacts itself.
//
// Resolution is deterministic: the same request always yields the same
// descriptor set (modulo upstream mutation), which keys the cache by
// (game version, loader kind, loader version).
type Resolver struct {
	client    *http.Client
	endpoints Endpoints
	cache     *Cache
	logger    *log.Logger
}

// NewResolver creates a resolver from config.
func NewResolver(cfg Config) *Resolver {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Resolver{
		client:    client,
		endpoints: cfg.Endpoints.withDefaults(),
		cache:     cfg.Cache,
		logger:    logger,
	}
}

// Endpoints returns the effective endpoint set.
func (r *Resolver) Endpoints() Endpoints {
	return r.endpoints
}

// Resolve fetches the loader metadata for the request and returns the
// parsed manifest. Cached manifests are served without network calls.
func (r *Resolver) Resolve(ctx context.Context, meta *types.InstallMeta) (*LoaderManifest, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(meta)
	if r.cache != nil {
		var cached LoaderManifest
		hit, err := r.cache.Get(key, &cached)
		if err != nil {
			r.logger.Warn("manifest cache read failed", map[string]any{"key": key, "error": err.Error()})
		} else if hit && cached.Validate() == nil {
			r.logger.Debug("manifest cache hit", map[string]any{"key": key})
			return &cached, nil
		}
	}

	m := &LoaderManifest{Kind: meta.Loader}
	var err error
	switch meta.Loader {
	case types.LoaderFabric:
		m.Fabric, err = r.resolveFabric(ctx, meta.GameVersion, meta.LoaderVersion)
	case types.LoaderQuilt:
		m.Quilt, err = r.resolveQuilt(ctx, meta.GameVersion, meta.LoaderVersion)
	case types.LoaderForge:
		m.Forge, err = r.resolveForge(ctx, meta.GameVersion, meta.LoaderVersion)
	case types.LoaderOptifine:
		m.Optifine, err = r.resolveOptifine(ctx, meta.GameVersion, meta.LoaderVersion)
	default:
		return nil, fmt.Errorf("unknown loader kind %q", meta.Loader)
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(key, m); err != nil {
			r.logger.Warn("manifest cache write failed", map[string]any{"key": key, "error": err.Error()})
		}
	}
	return m, nil
}

// cacheKey derives the manifest cache key from request identity.
func cacheKey(meta *types.InstallMeta) string {
	return fmt.Sprintf("%s/%s/%s", meta.Loader, meta.GameVersion, meta.LoaderVersion)
}

// getRaw fetches a metadata document and returns the raw body.
// Classifies failures into the manifest error taxonomy.
func (r *Resolver) getRaw(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, networkErr(op, url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, networkErr(op, url, err)
	}
	defer iox.DiscardClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, notFoundErr(op, url)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, networkErr(op, url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, networkErr(op, url, err)
	}
	return body, nil
}

// getJSON fetches and decodes a JSON metadata document.
func (r *Resolver) getJSON(ctx context.Context, op, url string, v any) error {
	body, err := r.getRaw(ctx, op, url)
	if err != nil {
		return err
	}
	if err := decodeJSON(body, v); err != nil {
		return parseErr(op, url, err)
	}
	return nil
}

// decodeJSON strictly decodes a document, rejecting trailing garbage.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON document")
	}
	return nil
}

// joinURL joins a repository base URL with a relative path.
func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
