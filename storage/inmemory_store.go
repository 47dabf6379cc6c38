package storage

// InmemoryStore holds every preloaded archive in memory, indexed first by
// index id and then by archive id.
type InmemoryStore struct {
	indexes [][][]byte

	count int
	size  int64
}

func (i *InmemoryStore) Get(index uint8, archive uint16) ([]byte, bool) {
	if int(index) >= len(i.indexes) {
		return nil, false
	}

	archives := i.indexes[index]
	if int(archive) >= len(archives) || archives[archive] == nil {
		return nil, false
	}

	return archives[archive], true
}

func (i *InmemoryStore) Length(index uint8, archive uint16) int {
	data, _ := i.Get(index, archive)
	return len(data)
}

// Count returns the number of archives held.
func (i *InmemoryStore) Count() int {
	return i.count
}

// Size returns the total number of archive bytes held.
func (i *InmemoryStore) Size() int64 {
	return i.size
}

// Builder collects archives for an InmemoryStore. It is not safe for
// concurrent use except that distinct indexes may be filled concurrently
// once Reserve has been called for each of them.
type Builder struct {
	indexes [][][]byte
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Reserve makes room for count archives in index.
func (b *Builder) Reserve(index uint8, count int) {
	for len(b.indexes) <= int(index) {
		b.indexes = append(b.indexes, nil)
	}

	if len(b.indexes[index]) < count {
		archives := make([][]byte, count)
		copy(archives, b.indexes[index])
		b.indexes[index] = archives
	}
}

// Put stores the contents of an archive. A nil data removes it.
func (b *Builder) Put(index uint8, archive uint16, data []byte) {
	if int(index) >= len(b.indexes) || int(archive) >= len(b.indexes[index]) {
		b.Reserve(index, int(archive)+1)
	}

	b.indexes[index][archive] = data
}

// Build freezes the collected archives into a Store. The Builder must not be
// used afterwards.
func (b *Builder) Build() *InmemoryStore {
	store := &InmemoryStore{indexes: b.indexes}
	b.indexes = nil

	for _, archives := range store.indexes {
		for _, data := range archives {
			if data != nil {
				store.count++
				store.size += int64(len(data))
			}
		}
	}

	return store
}

var _ Store = (*InmemoryStore)(nil)
