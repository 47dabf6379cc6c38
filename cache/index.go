// Package cache reads archives out of the classic on-disk cache layout: one
// shared data file split into fixed size sectors, plus one index file per
// archive index that maps archive ids to their size and first sector.
package cache

import (
	"errors"
	"fmt"
	"io"
)

const (
	// IndexEntrySize is the length of one archive's entry in an index file.
	IndexEntrySize = 6

	// SectorSize is the length of one sector in the data file.
	SectorSize = 520

	// SectorHeaderSize is the length of the header at the start of every sector.
	SectorHeaderSize = 8

	// SectorDataSize is the number of archive bytes a sector holds.
	SectorDataSize = SectorSize - SectorHeaderSize

	// storeOffset maps an on-demand index id to the store id its sectors
	// carry. Store 0 is the cache's own catalogue and on-demand index 0 lives
	// in idx1, whose sectors are tagged with 2.
	storeOffset = 2
)

var (
	ErrSectorMismatch = errors.New("Sector header does not belong to the archive being read")
	ErrSectorChain    = errors.New("Sector chain ended before the archive was complete")
)

// FileIndex reads the archives of a single index. It only uses ReadAt so a
// FileIndex is safe for concurrent use.
type FileIndex struct {
	id    uint8
	store int
	data  io.ReaderAt
	index io.ReaderAt
	count int
}

// NewFileIndex builds a reader for index id. indexSize is the length of the
// index file in bytes.
func NewFileIndex(id uint8, data io.ReaderAt, index io.ReaderAt, indexSize int64) *FileIndex {
	return &FileIndex{
		id:    id,
		store: StoreID(id),
		data:  data,
		index: index,
		count: int(indexSize / IndexEntrySize),
	}
}

// ID returns the index id this reader serves.
func (f *FileIndex) ID() uint8 {
	return f.id
}

// StoreID returns the store byte every sector of on-demand index id carries.
// Ids above 253 have no representable store byte, so nothing matches them.
func StoreID(id uint8) int {
	return int(id) + storeOffset
}

// Count returns the number of archive slots in the index, present or not.
func (f *FileIndex) Count() int {
	return f.count
}

// Get returns the contents of archive. A missing archive is not an error, it
// returns nil bytes.
func (f *FileIndex) Get(archive int) ([]byte, error) {
	if archive < 0 || archive >= f.count {
		return nil, nil
	}

	var entry [IndexEntrySize]byte
	if _, err := f.index.ReadAt(entry[:], int64(archive)*IndexEntrySize); err != nil {
		return nil, fmt.Errorf("Failed to read index %d entry %d: %w", f.id, archive, err)
	}

	size := int(entry[0])<<16 | int(entry[1])<<8 | int(entry[2])
	sector := int64(entry[3])<<16 | int64(entry[4])<<8 | int64(entry[5])
	if size == 0 || sector == 0 {
		return nil, nil
	}

	out := make([]byte, size)
	buf := make([]byte, SectorSize)

	for off, chunk := 0, 0; off < size; chunk++ {
		if sector == 0 {
			return nil, fmt.Errorf("Failed to read index %d archive %d at chunk %d: %w",
				f.id, archive, chunk, ErrSectorChain)
		}

		want := size - off
		if want > SectorDataSize {
			want = SectorDataSize
		}

		n, err := f.data.ReadAt(buf, sector*SectorSize)
		if err != nil && !(errors.Is(err, io.EOF) && n >= SectorHeaderSize+want) {
			return nil, fmt.Errorf("Failed to read index %d archive %d sector %d: %w",
				f.id, archive, sector, err)
		}

		headerArchive := int(buf[0])<<8 | int(buf[1])
		headerChunk := int(buf[2])<<8 | int(buf[3])
		next := int64(buf[4])<<16 | int64(buf[5])<<8 | int64(buf[6])
		store := buf[7]

		if headerArchive != archive || headerChunk != chunk&0xFFFF || int(store) != f.store {
			return nil, fmt.Errorf(
				"Failed to read index %d archive %d sector %d (archive %d, chunk %d, store %d): %w",
				f.id, archive, sector, headerArchive, headerChunk, store, ErrSectorMismatch)
		}

		copy(out[off:off+want], buf[SectorHeaderSize:SectorHeaderSize+want])
		off += want
		sector = next
	}

	return out, nil
}
