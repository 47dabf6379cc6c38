// Package manifest reads and writes the preload manifest: the list of
// archives the server loads into memory before it starts serving.
//
// The encoding is a run of 4 byte records, `[1][index:1][archive:2 BE]`,
// terminated by a single 0 byte.
package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	opEnd    = 0
	opRecord = 1
)

var (
	ErrUnterminated  = errors.New("Manifest ended without a terminator")
	ErrUnknownOpcode = errors.New("Manifest contains an unknown opcode")
	ErrArchiveRange  = errors.New("Archive id does not fit in a manifest record")
)

// Entry names one archive to preload.
type Entry struct {
	Index   uint8
	Archive uint16
}

// Source is an archive index the manifest can be generated from.
type Source interface {
	ID() uint8
	Count() int
	Get(archive int) ([]byte, error)
}

// Read decodes a manifest.
func Read(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	entries := make([]Entry, 0)

	for {
		op, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrUnterminated
			}

			return nil, err
		}

		switch op {
		case opEnd:
			return entries, nil

		case opRecord:
			var rec [3]byte
			if _, err := io.ReadFull(br, rec[:]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, ErrUnterminated
				}

				return nil, err
			}

			entries = append(entries, Entry{
				Index:   rec[0],
				Archive: uint16(rec[1])<<8 | uint16(rec[2]),
			})

		default:
			return nil, fmt.Errorf("Failed to read record %d, opcode %d: %w",
				len(entries), op, ErrUnknownOpcode)
		}
	}
}

// Write encodes entries followed by the terminator.
func Write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)

	for _, e := range entries {
		if _, err := bw.Write([]byte{opRecord, e.Index, byte(e.Archive >> 8), byte(e.Archive)}); err != nil {
			return err
		}
	}

	if err := bw.WriteByte(opEnd); err != nil {
		return err
	}

	return bw.Flush()
}

// Generate lists every present archive of every source, in source order and
// then archive order.
func Generate(ctx context.Context, sources ...Source) ([]Entry, error) {
	entries := make([]Entry, 0)

	for _, src := range sources {
		for archive := 0; archive < src.Count(); archive++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			data, err := src.Get(archive)
			if err != nil {
				return nil, fmt.Errorf("Failed to read index %d archive %d: %w", src.ID(), archive, err)
			}

			if data == nil {
				continue
			}

			if archive > 0xFFFF {
				return nil, fmt.Errorf("Failed to add index %d archive %d: %w", src.ID(), archive, ErrArchiveRange)
			}

			entries = append(entries, Entry{Index: src.ID(), Archive: uint16(archive)})
		}
	}

	return entries, nil
}
