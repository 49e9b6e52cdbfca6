package scanner

import (
	"github.com/protosalvage/protosalvage/internal/wirereader"
)

// walkDescriptor performs the forward validation walk described in
// spec.md §4.2 step 4: starting at headerStart (the candidate's field-1
// tag byte), it consumes top-level fields until it hits a clean end (an
// unknown field number, a malformed tag, or the start of the next
// adjacent descriptor's own field-1 header) or a hard failure (a
// declared length that runs past the buffer, which discards the whole
// candidate).
func walkDescriptor(buf []byte, headerStart int) (end int, ok bool) {
	r := wirereader.New(buf)
	if err := r.Seek(headerStart); err != nil {
		return 0, false
	}

	seenFieldOne := false
	cursor := headerStart

	for !r.Done() {
		beforeTag := r.Pos()
		tag, err := r.ReadTag()
		if err != nil {
			// Clean end: whatever comes next isn't a valid top-level
			// field tag at all.
			return cursor, cursor > headerStart
		}
		if tag.FieldNumber > maxKnownFieldNumber {
			// Clean end: rewind past the tag we just peeked at.
			return cursor, true
		}
		if tag.FieldNumber == 1 {
			if seenFieldOne {
				// This is the start of an adjacent descriptor's own
				// header (spec.md §4.2 "Adjacent descriptors"); stop
				// before it.
				return cursor, true
			}
			seenFieldOne = true
		}

		if _, _, err := r.SkipField(tag); err != nil {
			// Hard fail: declared length ran past the buffer, or some
			// other structural problem. Discard the whole candidate.
			return 0, false
		}
		cursor = r.Pos()
		_ = beforeTag
	}

	// Reached end of buffer cleanly inside a field boundary: the
	// descriptor is whatever we've consumed so far, provided we saw at
	// least the filename field.
	return cursor, seenFieldOne
}
