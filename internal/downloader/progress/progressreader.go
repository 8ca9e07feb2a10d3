// Package progress reports byte-level progress of a stream.
package progress

import "io"

// Func receives the cumulative number of bytes read and the expected total,
// which is zero when unknown.
type Func func(read, total int64)

// Reader wraps an io.Reader and calls a Func every interval bytes and once
// more when the underlying reader is exhausted.
type Reader struct {
	r        io.Reader
	total    int64
	interval int64
	report   Func

	read       int64
	sinceLast  int64
	reportedAt int64
	done       bool
}

// NewReader returns a Reader. A non-positive interval reports only at EOF.
func NewReader(r io.Reader, total, interval int64, fn Func) *Reader {
	return &Reader{
		r:        r,
		total:    total,
		interval: interval,
		report:   fn,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.interval > 0 && pr.sinceLast >= pr.interval {
			pr.emit()
		}
	}

	if err == io.EOF && !pr.done {
		pr.done = true

		if pr.reportedAt != pr.read {
			pr.emit()
		}
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) emit() {
	pr.sinceLast = 0
	pr.reportedAt = pr.read

	if pr.report != nil {
		pr.report(pr.read, pr.total)
	}
}
