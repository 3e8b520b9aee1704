// Package chunk splits large sequences into bounded pieces and delivers them
// one piece per event loop turn, so a bulk reply never monopolises the loop.
package chunk

// DefaultCount is the target number of chunks per sequence.
const DefaultCount = 100

// Submitter defers a task to a later turn of an event loop.
type Submitter interface {
	Submit(fn func()) error
}

// Size returns the chunk size used for a sequence of n items split into
// roughly count chunks. It is always at least one.
func Size(n, count int) int {
	if count <= 0 {
		count = DefaultCount
	}
	return n/count + 1
}

// Count returns how many chunks a sequence of n items is delivered in.
func Count(n, count int) int {
	if n <= 0 {
		return 0
	}
	size := Size(n, count)
	return (n + size - 1) / size
}

// Split cuts seq into consecutive chunks of Size(len(seq), count) items.
// The chunks share seq's backing array.
func Split[T any](seq []T, count int) [][]T {
	if len(seq) == 0 {
		return nil
	}
	size := Size(len(seq), count)
	chunks := make([][]T, 0, Count(len(seq), count))
	for start := 0; start < len(seq); start += size {
		end := min(start+size, len(seq))
		chunks = append(chunks, seq[start:end:end])
	}
	return chunks
}

// Stream delivers seq in chunks, one per loop turn, in order. The first
// chunk is delivered on the next turn, never synchronously. An empty seq
// delivers nothing. Delivery stops silently if the loop stops accepting
// tasks.
func Stream[T any](loop Submitter, seq []T, count int, deliver func([]T)) error {
	chunks := Split(seq, count)
	if len(chunks) == 0 {
		return nil
	}

	var step func(i int) func()
	step = func(i int) func() {
		return func() {
			deliver(chunks[i])
			if i+1 < len(chunks) {
				_ = loop.Submit(step(i + 1))
			}
		}
	}
	return loop.Submit(step(0))
}
