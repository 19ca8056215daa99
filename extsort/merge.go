package extsort

import (
	"errors"
)

// mergeItem is one heap slot: the head record of a run plus the run index
// it came from.
type mergeItem[T any] struct {
	value T
	run   int
}

// mergeCursor is a k-way merge over open spill runs, implemented as a
// hand-rolled binary min-heap keyed by the sorter's less function.
type mergeCursor[T any] struct {
	sorter  *Sorter[T]
	readers []*runReader[T]
	names   []string
	heap    []mergeItem[T]
	err     error
	closed  bool
}

func (s *Sorter[T]) openMerge(runs []string) (*mergeCursor[T], error) {
	m := &mergeCursor[T]{
		sorter:  s,
		readers: make([]*runReader[T], len(runs)),
		names:   runs,
		heap:    make([]mergeItem[T], 0, len(runs)),
	}
	for i, name := range runs {
		rr, err := s.openRun(name)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.readers[i] = rr
		v, ok, err := rr.next()
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		if ok {
			m.push(mergeItem[T]{value: v, run: i})
		}
	}
	return m, nil
}

// Next pops the smallest head record and refills the heap from its run.
func (m *mergeCursor[T]) Next() (T, bool) {
	var zero T
	if m.err != nil || len(m.heap) == 0 {
		return zero, false
	}

	top := m.heap[0]
	v, ok, err := m.readers[top.run].next()
	if err != nil {
		m.err = err
		return zero, false
	}
	if ok {
		m.heap[0] = mergeItem[T]{value: v, run: top.run}
		m.siftDown(0)
	} else {
		last := len(m.heap) - 1
		m.heap[0] = m.heap[last]
		m.heap = m.heap[:last]
		if len(m.heap) > 0 {
			m.siftDown(0)
		}
	}
	return top.value, true
}

func (m *mergeCursor[T]) Err() error { return m.err }

// Close closes all run readers and removes the spill files.
func (m *mergeCursor[T]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, rr := range m.readers {
		if rr != nil {
			if err := rr.close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, name := range m.names {
		if err := m.sorter.opts.FS.Remove(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *mergeCursor[T]) less(i, j int) bool {
	return m.sorter.less(m.heap[i].value, m.heap[j].value)
}

func (m *mergeCursor[T]) push(item mergeItem[T]) {
	m.heap = append(m.heap, item)
	m.siftUp(len(m.heap) - 1)
}

func (m *mergeCursor[T]) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !m.less(i, p) {
			return
		}
		m.heap[i], m.heap[p] = m.heap[p], m.heap[i]
		i = p
	}
}

func (m *mergeCursor[T]) siftDown(i int) {
	n := len(m.heap)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && m.less(r, l) {
			best = r
		}
		if !m.less(best, i) {
			return
		}
		m.heap[i], m.heap[best] = m.heap[best], m.heap[i]
		i = best
	}
}
