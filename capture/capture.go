// Package capture records inbound/outbound RTPS datagrams to a compressed
// file for field diagnostics, using a --compress bzip2/gz/zstd
// file-rotation shape.
package capture

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the codec Capture wraps its output file in.
type Compression int

const (
	None Compression = iota
	Gzip
	Bzip2
	Zstd
)

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "false":
		return None, nil
	case "gz", "gzip":
		return Gzip, nil
	case "bz2", "bzip2", "bz", "bzip":
		return Bzip2, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return None, fmt.Errorf("capture: invalid compression %q", s)
	}
}

// Capture is an observer the Reactor feeds every inbound datagram to,
// never gating or reordering protocol processing. The record format can
// mark a datagram as outbound, but the Reactor records inbound traffic only.
type Capture struct {
	fh   *os.File
	wr   io.WriteCloser
	n    int64
}

// Record is one logged datagram: direction, wall-clock time, and payload.
type Record struct {
	Outbound bool
	At       time.Time
	Payload  []byte
}

func Open(fpath string, comp Compression) (*Capture, error) {
	if err := os.MkdirAll(path.Dir(fpath), 0755); err != nil {
		return nil, fmt.Errorf("capture: mkdir: %w", err)
	}
	fh, err := os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("capture: open: %w", err)
	}

	var wr io.WriteCloser
	switch comp {
	case Gzip:
		wr = gzip.NewWriter(fh)
	case Bzip2:
		w, err := bzip2.NewWriter(fh, nil)
		if err != nil {
			fh.Close()
			return nil, fmt.Errorf("capture: bzip2 writer: %w", err)
		}
		wr = w
	case Zstd:
		w, err := zstd.NewWriter(fh)
		if err != nil {
			fh.Close()
			return nil, fmt.Errorf("capture: zstd writer: %w", err)
		}
		wr = w
	default:
		wr = fh
	}

	return &Capture{fh: fh, wr: wr}, nil
}

// Write appends one record in a simple length-prefixed framing: 1 octet
// direction, 8 octets unix-nano timestamp, 4 octets length, payload.
func (c *Capture) Write(rec Record) error {
	var hdr [13]byte
	if rec.Outbound {
		hdr[0] = 1
	}
	putUint64(hdr[1:9], uint64(rec.At.UnixNano()))
	putUint32(hdr[9:13], uint32(len(rec.Payload)))

	if _, err := c.wr.Write(hdr[:]); err != nil {
		return err
	}
	n, err := c.wr.Write(rec.Payload)
	c.n += int64(n)
	return err
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (24 - 8*i))
	}
}

func (c *Capture) Close() error {
	c.wr.Close()
	return c.fh.Close()
}
