package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ondemand/cache"
	"github.com/luma/ondemand/internal/env"
	"github.com/luma/ondemand/manifest"
	"github.com/luma/ondemand/storage"
)

func openCache(catalog *env.Catalog) (*cache.Cache, error) {
	return cache.Open(catalog.CacheDir, catalog.MainFile, catalog.IndexFiles)
}

// loadStore preloads every archive the catalog's manifest names. The cache
// files are only needed while loading.
func loadStore(ctx context.Context, catalog *env.Catalog, log *zap.Logger) (_ *storage.InmemoryStore, err error) {
	c, err := openCache(catalog)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	f, err := os.Open(catalog.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("Failed to open manifest, run setup first: %w", err)
	}
	defer f.Close()

	entries, err := manifest.Read(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to read manifest %s: %w", catalog.ManifestPath(), err)
	}

	log.Info("Read manifest",
		zap.String("path", catalog.ManifestPath()),
		zap.String("entries", humanize.Comma(int64(len(entries)))))

	readers := make(map[uint8]storage.Reader)
	for _, index := range c.Indexes() {
		readers[index.ID()] = index
	}

	return storage.Preload(ctx, entries, readers, log.Named("preload"))
}

// writeManifest lists every present archive of the catalog's indexes and
// writes the manifest the server preloads from.
func writeManifest(ctx context.Context, catalog *env.Catalog, log *zap.Logger) (_ []manifest.Entry, err error) {
	c, err := openCache(catalog)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	sources := make([]manifest.Source, 0, len(catalog.IndexIDs))
	for _, id := range catalog.IndexIDs {
		index, _ := c.Index(id)
		sources = append(sources, index)
	}

	entries, err := manifest.Generate(ctx, sources...)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(catalog.OutDir, 0750); err != nil {
		return nil, err
	}

	f, err := os.Create(catalog.ManifestPath())
	if err != nil {
		return nil, err
	}

	if err := manifest.Write(f, entries); err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	if err := f.Close(); err != nil {
		return nil, err
	}

	log.Info("Wrote manifest",
		zap.String("path", catalog.ManifestPath()),
		zap.String("entries", humanize.Comma(int64(len(entries)))))

	return entries, nil
}
