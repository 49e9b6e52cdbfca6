// Package scanner implements the heuristic byte-level search for embedded
// FileDescriptorProto regions described in spec.md §4.2. It never panics
// and never aborts a scan on malformed input — a candidate that fails to
// validate is simply discarded and the search resumes past it.
//
// The forward wire-walk and backward header search are grounded in the
// retrieved zjx20/protodump scanner (_examples/other_examples), adapted
// to use this repository's own wirereader instead of protowire and to
// return byte ranges (DescriptorHit) rather than copied slices.
package scanner

import (
	"bytes"
)

const (
	filenameTail = ".proto"
	fieldOneTag  = 0x0A // field 1, wire type 2 (length-delimited) — FileDescriptorProto.name

	// maxKnownFieldNumber bounds the "tolerate all field numbers" rule in
	// spec.md §4.2 step 4: FileDescriptorProto has ~13 top-level fields,
	// but we tolerate a generous range to absorb future additions without
	// false-stopping a clean walk.
	maxKnownFieldNumber = 32

	// maxHeaderSearchWindow bounds how far back from a ".proto" hit we
	// search for a plausible field-1 header, independent of MaxFilenameLen.
	maxHeaderSearchWindow = 16400
)

// DescriptorHit is a located candidate FileDescriptorProto byte range, per
// spec.md §3.
type DescriptorHit struct {
	Start    int
	End      int
	Filename string
}

// Options configures a scan. The zero value is valid and uses the
// defaults from spec.md §4.2.
type Options struct {
	// MaxDescriptors bounds the number of hits emitted; 0 means unlimited.
	MaxDescriptors int
	// MinFilenameLen / MaxFilenameLen bound the accepted filename length.
	// Defaults: 7 ("a.proto") and 512.
	MinFilenameLen int
	MaxFilenameLen int
}

func (o Options) withDefaults() Options {
	if o.MinFilenameLen <= 0 {
		o.MinFilenameLen = 7
	}
	if o.MaxFilenameLen <= 0 {
		o.MaxFilenameLen = 512
	}
	return o
}

// Scan locates every plausible FileDescriptorProto region in buf and
// returns the hits in ascending, non-overlapping order. It never panics,
// runs in a single pass over buf, and terminates for any input including
// random bytes (spec.md §8 properties 1-3).
func Scan(buf []byte, opts Options) []DescriptorHit {
	opts = opts.withDefaults()

	var hits []DescriptorHit
	searchFrom := 0

	for {
		if opts.MaxDescriptors > 0 && len(hits) >= opts.MaxDescriptors {
			break
		}
		if searchFrom >= len(buf) {
			break
		}

		rel := bytes.Index(buf[searchFrom:], []byte(filenameTail))
		if rel == -1 {
			break
		}
		protoIdx := searchFrom + rel
		filenameEnd := protoIdx + len(filenameTail)

		hit, ok := tryResolveHit(buf, filenameEnd, opts)
		if !ok {
			// Not a valid header for this occurrence; resume just past
			// this ".proto" sighting so an overlapping later occurrence
			// (e.g. "a.proto.proto") still gets a chance.
			searchFrom = protoIdx + 1
			continue
		}

		hits = append(hits, hit)
		searchFrom = hit.End
	}

	return hits
}

// tryResolveHit attempts every plausible field-1 header ending at
// filenameEnd (spec.md §4.2 steps 2-4), trying the nearest candidate
// first, and returns the first one whose forward wire-walk validates
// cleanly.
func tryResolveHit(buf []byte, filenameEnd int, opts Options) (DescriptorHit, bool) {
	windowStart := filenameEnd - maxHeaderSearchWindow
	if windowStart < 0 {
		windowStart = 0
	}

	for searchEnd := filenameEnd; searchEnd > windowStart; {
		pos := lastIndexByte(buf[windowStart:searchEnd], fieldOneTag)
		if pos == -1 {
			return DescriptorHit{}, false
		}
		headerStart := windowStart + pos
		searchEnd = headerStart // next iteration searches strictly before this byte

		filenameStart, ok := validateFilenameHeader(buf, headerStart, filenameEnd, opts)
		if !ok {
			continue
		}

		end, ok := walkDescriptor(buf, headerStart)
		if !ok {
			continue
		}

		return DescriptorHit{
			Start:    headerStart,
			End:      end,
			Filename: string(buf[filenameStart:filenameEnd]),
		}, true
	}

	return DescriptorHit{}, false
}

// validateFilenameHeader checks that headerStart begins a
// (0x0A, varint-length) pair whose decoded length exactly reaches
// filenameEnd, and that the filename bytes in between are a printable,
// plausible proto path ending in ".proto".
func validateFilenameHeader(buf []byte, headerStart, filenameEnd int, opts Options) (filenameStart int, ok bool) {
	if headerStart < 0 || headerStart >= len(buf) || buf[headerStart] != fieldOneTag {
		return 0, false
	}
	length, n, ok := readLengthVarint(buf[headerStart+1:])
	if !ok {
		return 0, false
	}
	filenameStart = headerStart + 1 + n
	if filenameStart+int(length) != filenameEnd {
		return 0, false
	}
	flen := filenameEnd - filenameStart
	if flen < opts.MinFilenameLen || flen > opts.MaxFilenameLen {
		return 0, false
	}
	if !isValidProtoFilename(buf[filenameStart:filenameEnd]) {
		return 0, false
	}
	return filenameStart, true
}

// isValidProtoFilename implements spec.md §4.2 step 3's character class
// and suffix check.
func isValidProtoFilename(b []byte) bool {
	if !bytes.HasSuffix(b, []byte(filenameTail)) {
		return false
	}
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '/' || c == '-':
		default:
			return false
		}
	}
	return true
}

// readLengthVarint decodes a 1- or 2-byte varint, per spec.md §4.2 step
// 2's requirement to support filenames up to 16383 bytes.
func readLengthVarint(b []byte) (value uint64, byteLen int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	if b[0]&0x80 == 0 {
		return uint64(b[0]), 1, true
	}
	if len(b) < 2 || b[1]&0x80 != 0 {
		return 0, 0, false
	}
	value = uint64(b[0]&0x7f) | uint64(b[1])<<7
	return value, 2, true
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}
