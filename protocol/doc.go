package protocol

// This package implements encoding and decoding for the binary on-demand
// protocol that clients use to fetch preloaded archives from the server.
//
// The protocol aims to be
//
// - cheap to parse, every client frame is a fixed 4 bytes
// - interleavable, large archives are split into 500 byte blocks so one
//   client's big download never starves another client's small one
// - stateless on the wire, every response chunk carries the full identity
//   of the archive it belongs to
//
// - `Request` - A 4 byte frame from the client asking for one archive.
// - `Chunk`   - A server response carrying one block of an archive.
//
// === Handshake
//
//   ```
//     > 0x0F
//     < 00 00 00 00 00 00 00 00
//   ```
//
// The client opens with the single byte 15. Anything else closes the
// connection without a reply. The server acknowledges with 8 zero bytes, after
// which the client may send request frames at any time.
//
// === Request frame
//
//   ```
//     > [index:1][archiveHi:1][archiveLo:1][priority:1]
//   ```
//
// `priority` selects the queue the request waits in: 2 is urgent, 1 is
// priority and every other value is passive. Urgent requests are always served
// before priority requests, which are always served before passive ones.
// Within a class requests are served in arrival order.
//
// === Response chunk
//
//   ```
//     < [index:1][archiveHi:1][archiveLo:1][sizeHi:1][sizeLo:1][block:1][payload:0..500]
//   ```
//
// `size` is the total archive length and `block` is the low 8 bits of the
// block number. The payload is the slice of the archive starting at
// `block * 500`, at most 500 bytes long. The client knows an archive is
// complete once it has received `size` payload bytes.
//
// An archive the server does not hold is answered with a single chunk with
// size 0, block 0 and no payload.
//
