package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luma/ondemand/manifest"
	"github.com/luma/ondemand/protocol"
)

var ErrUnknownIndex = errors.New("Manifest names an index that is not configured")

// Reader is the source an index's archives are preloaded from.
type Reader interface {
	Count() int
	Get(archive int) ([]byte, error)
}

// Preload reads every archive named by entries from its index reader and
// returns them as a frozen store. Indexes are read concurrently.
func Preload(
	ctx context.Context,
	entries []manifest.Entry,
	readers map[uint8]Reader,
	log *zap.Logger,
) (*InmemoryStore, error) {
	byIndex := make(map[uint8][]uint16)
	for _, e := range entries {
		if _, ok := readers[e.Index]; !ok {
			return nil, fmt.Errorf("Failed to preload %d/%d: %w", e.Index, e.Archive, ErrUnknownIndex)
		}

		byIndex[e.Index] = append(byIndex[e.Index], e.Archive)
	}

	builder := NewBuilder()
	for index, archives := range byIndex {
		count := readers[index].Count()
		for _, archive := range archives {
			if int(archive) >= count {
				count = int(archive) + 1
			}
		}

		builder.Reserve(index, count)
	}

	g, ctx := errgroup.WithContext(ctx)

	for index, archives := range byIndex {
		index, archives := index, archives
		reader := readers[index]
		log := log.With(zap.Uint8("index", index))

		g.Go(func() error {
			for _, archive := range archives {
				if err := ctx.Err(); err != nil {
					return err
				}

				data, err := reader.Get(int(archive))
				if err != nil {
					return fmt.Errorf("Failed to preload %d/%d: %w", index, archive, err)
				}

				if data == nil {
					log.Warn("Manifest archive is missing from its index",
						zap.Uint16("archive", archive))
					continue
				}

				if len(data) > protocol.MaxArchiveSize {
					// The size field is 16 bits wide, clients only ever see the low bits
					log.Warn("Archive is too large to be served whole",
						zap.Uint16("archive", archive),
						zap.Int("size", len(data)))
				}

				builder.Put(index, archive, data)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := builder.Build()

	log.Info("Preloaded archives",
		zap.Int("indexes", len(byIndex)),
		zap.Int("count", store.Count()),
		zap.String("size", humanize.Bytes(uint64(store.Size()))))

	return store, nil
}
