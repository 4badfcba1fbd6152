package protocol

import "bytes"

// LineReader assembles newline-terminated frames from an arbitrary
// sequence of byte chunks. Partial lines are buffered until their
// terminator arrives; a chunk holding several complete lines yields
// them in order. The resulting frame sequence is invariant under how
// the stream was split into chunks.
type LineReader struct {
	buf bytes.Buffer
}

// Feed appends a chunk to the buffer and returns every complete line
// now available, without trailing newlines. Empty lines are dropped.
func (r *LineReader) Feed(chunk []byte) [][]byte {
	r.buf.Write(chunk)

	var lines [][]byte
	for {
		data := r.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return lines
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		r.buf.Next(idx + 1)
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
}

// Pending reports how many buffered bytes await a terminator.
func (r *LineReader) Pending() int {
	return r.buf.Len()
}
