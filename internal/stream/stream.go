// Package stream provides lazy, forward-only record streams backed by
// newline-delimited JSON files, optionally snappy framed.
package stream

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// SnappySuffix marks snappy framed dataset files.
const SnappySuffix = ".sz"

// maxLineSize bounds a single encoded record.
const maxLineSize = 1 << 20

// Source is a lazy single-pass sequence of records. Next returns io.EOF once
// the sequence is exhausted; a Source cannot be rewound.
type Source interface {
	Next() (types.Record, error)
}

// FileName returns the dataset file name for an entity under a compression mode.
func FileName(e types.Entity, compression string) string {
	name := e.FileName()
	if compression == "snappy" {
		name += SnappySuffix
	}
	return name
}

// Reader streams records of one entity from a dataset file.
type Reader struct {
	entity  types.Entity
	file    *os.File
	scanner *bufio.Scanner
	line    int64
}

// Open opens a dataset file. Files ending in SnappySuffix are decompressed
// transparently.
func Open(path string, entity types.Entity) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stream: failed to open %s: %w", path, err)
	}

	var r io.Reader = f
	if strings.HasSuffix(path, SnappySuffix) {
		r = snappy.NewReader(f)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Reader{entity: entity, file: f, scanner: scanner}, nil
}

// Next decodes the next record.
func (r *Reader) Next() (types.Record, error) {
	for r.scanner.Scan() {
		r.line++
		b := r.scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		rec, err := types.Decode(r.entity, b)
		if err != nil {
			return nil, fmt.Errorf("stream: %s line %d: %w", r.entity, r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream: %s: %w", r.entity, err)
	}
	return nil, io.EOF
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Writer appends encoded records to a dataset file while counting records
// and hashing the bytes that reach the disk. Records go to a temporary file
// that Close renames into place.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	buf     *bufio.Writer
	snappy  *snappy.Writer
	counter *countingWriter
	hash    hash.Hash
	records int64
}

// Create starts writing path. Until Close, the previous file at path (if
// any) is left untouched. Paths ending in SnappySuffix are written snappy
// framed.
func Create(path string) (*Writer, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stream: failed to create %s: %w", tmpPath, err)
	}

	h := murmur3.New128()
	counter := &countingWriter{w: io.MultiWriter(f, h)}
	w := &Writer{path: path, tmpPath: tmpPath, file: f, counter: counter, hash: h}

	var dst io.Writer = counter
	if strings.HasSuffix(path, SnappySuffix) {
		w.snappy = snappy.NewBufferedWriter(counter)
		dst = w.snappy
	}
	w.buf = bufio.NewWriterSize(dst, 256*1024)
	return w, nil
}

// Write appends one record followed by a newline.
func (w *Writer) Write(rec types.Record) error {
	b, err := types.Encode(rec)
	if err != nil {
		return fmt.Errorf("stream: failed to encode %s record: %w", rec.Entity(), err)
	}
	if _, err := w.buf.Write(b); err != nil {
		return fmt.Errorf("stream: failed to write %s: %w", w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("stream: failed to write %s: %w", w.path, err)
	}
	w.records++
	return nil
}

// Close flushes all buffers and renames the finished file into place. Stats
// are final afterwards. On error nothing is left at path or its temp file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("stream: failed to flush %s: %w", w.path, err)
	}
	if w.snappy != nil {
		if err := w.snappy.Close(); err != nil {
			w.Abort()
			return fmt.Errorf("stream: failed to close snappy writer: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("stream: failed to close %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("stream: failed to rename %s: %w", w.tmpPath, err)
	}
	return nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	w.file.Close()
	os.Remove(w.tmpPath)
}

// Stats describes a written file.
type Stats struct {
	Records int64  `json:"records"`
	Bytes   int64  `json:"bytes"`
	Digest  string `json:"digest"`
}

// Stats returns the record count, on-disk size and murmur3 digest.
func (w *Writer) Stats() Stats {
	return Stats{
		Records: w.records,
		Bytes:   w.counter.n,
		Digest:  hex.EncodeToString(w.hash.Sum(nil)),
	}
}

// Digest hashes an existing file the same way Writer does.
func Digest(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("stream: failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := murmur3.New128()
	n, err := io.Copy(h, f)
	if err != nil {
		return Stats{}, fmt.Errorf("stream: failed to read %s: %w", path, err)
	}
	return Stats{Bytes: n, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []types.Record
	pos     int
}

// FromSlice returns a Source over records.
func FromSlice(records []types.Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next implements Source.
func (s *SliceSource) Next() (types.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}
