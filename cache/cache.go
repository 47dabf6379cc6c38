package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"
)

// Cache owns the open files of a cache directory and the FileIndex readers
// built over them.
type Cache struct {
	files   []*os.File
	indexes map[uint8]*FileIndex
}

// Open opens the data file mainName and every index file in indexNames, all
// relative to dir.
func Open(dir string, mainName string, indexNames map[uint8]string) (_ *Cache, err error) {
	c := &Cache{indexes: make(map[uint8]*FileIndex, len(indexNames))}

	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
		}
	}()

	data, err := os.Open(filepath.Join(dir, mainName))
	if err != nil {
		return nil, fmt.Errorf("Failed to open cache data file: %w", err)
	}
	c.files = append(c.files, data)

	for id, name := range indexNames {
		file, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("Failed to open index %d: %w", id, err)
		}
		c.files = append(c.files, file)

		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("Failed to stat index %d: %w", id, err)
		}

		c.indexes[id] = NewFileIndex(id, data, file, info.Size())
	}

	return c, nil
}

// Index returns the reader for index id.
func (c *Cache) Index(id uint8) (*FileIndex, bool) {
	index, ok := c.indexes[id]
	return index, ok
}

// Indexes returns every opened index ordered by id.
func (c *Cache) Indexes() []*FileIndex {
	indexes := make([]*FileIndex, 0, len(c.indexes))
	for _, index := range c.indexes {
		indexes = append(indexes, index)
	}

	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].id < indexes[j].id
	})

	return indexes
}

// Close closes every file the cache opened.
func (c *Cache) Close() (err error) {
	for _, file := range c.files {
		err = multierr.Append(err, file.Close())
	}
	c.files = nil

	return err
}
