package protocol

// Chunk is one response unit: a header naming the archive and block plus up
// to BlockSize payload bytes.
type Chunk struct {
	Index   uint8
	Archive uint16
	Size    uint16
	Block   uint8
	Payload []byte
}

// Offset returns the archive offset of the first payload byte, assuming the
// block number has not wrapped.
func (c *Chunk) Offset() int {
	return int(c.Block) * BlockSize
}

// PayloadLength returns how many payload bytes block number block of an
// archive of the given size carries.
func PayloadLength(size int, block int) int {
	n := size - block*BlockSize
	if n > BlockSize {
		return BlockSize
	}

	if n < 0 {
		return 0
	}

	return n
}

// BlockCount returns the number of chunks needed to deliver an archive of the
// given size. An empty or missing archive still takes one chunk.
func BlockCount(size int) int {
	if size <= 0 {
		return 1
	}

	return (size + BlockSize - 1) / BlockSize
}
