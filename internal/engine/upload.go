package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/storage"
)

// DefaultUploadConcurrency bounds parallel blob uploads.
const DefaultUploadConcurrency = 8

// BlobStore uploads content and returns its URI.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// UploadParams bundles the collaborators of one upload run.
type UploadParams struct {
	Cache       *cache.Cache
	Store       BlobStore
	AssetsDir   string
	Concurrency int
	Logger      *slog.Logger
	Report      ReportFunc
}

// UploadSummary reports what an upload run did.
type UploadSummary struct {
	Total    int
	Uploaded int
	Skipped  int
}

// Upload discovers asset metadata files, pushes new or changed ones to
// the blob store and records the resulting URIs in the cache. Assets
// whose content hash already matches the cache are skipped, so an
// interrupted upload resumes. A changed asset resets its acceptance
// flag: the record on the ledger no longer matches and must be
// re-deployed.
func Upload(ctx context.Context, p UploadParams) (UploadSummary, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "upload")

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultUploadConcurrency
	}

	assets, err := DiscoverAssets(p.AssetsDir)
	if err != nil {
		return UploadSummary{}, err
	}

	summary := UploadSummary{Total: len(assets)}
	var todo []Asset
	for _, asset := range assets {
		item, ok := p.Cache.Get(asset.Index)
		if ok && item.URI != "" && item.AssetHash == storage.ContentAddress(asset.Raw) {
			summary.Skipped++
			continue
		}
		todo = append(todo, asset)
	}

	p.Report.printf("Uploading %d of %d asset(s)...", len(todo), summary.Total)
	logger.Info("uploading assets", "total", summary.Total, "todo", len(todo), "concurrency", concurrency)

	// Workers fill uris by position; cache writes happen after the
	// group finishes, on the calling goroutine only.
	uris := make([]string, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, asset := range todo {
		i, asset := i, asset
		g.Go(func() error {
			uri, err := p.Store.Put(gctx, asset.Raw)
			if err != nil {
				return fmt.Errorf("upload asset %d: %w", asset.Index, err)
			}
			uris[i] = uri
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UploadSummary{}, err
	}

	for i, asset := range todo {
		p.Cache.Put(asset.Index, cache.Item{
			Name:      asset.Name,
			URI:       uris[i],
			AssetHash: storage.ContentAddress(asset.Raw),
			Accepted:  false,
		})
	}
	summary.Uploaded = len(todo)

	if err := p.Cache.Flush(); err != nil {
		return UploadSummary{}, fmt.Errorf("flush cache: %w", err)
	}

	p.Report.printf("Upload complete: %d uploaded, %d unchanged.", summary.Uploaded, summary.Skipped)
	return summary, nil
}
