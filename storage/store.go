package storage

// Store is a read only lookup of archive contents by index and archive id.
// Implementations are filled before serving starts and never change after,
// so they are safe for concurrent use without locking.
type Store interface {
	// Get returns the contents of an archive and whether it is present.
	Get(index uint8, archive uint16) ([]byte, bool)

	// Length returns the length of an archive, 0 if it is absent.
	Length(index uint8, archive uint16) int
}
