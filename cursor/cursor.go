// Package cursor provides the pull-based iterator abstraction the selhist
// pipeline is composed of. Cursors are single-pass and lazy: each stage fully
// drains its upstream before handing data to the next one, there is no
// overlapped streaming.
package cursor

// Cursor is a finite, single-pass sequence of values. After Next returns
// false the caller must consult Err to distinguish exhaustion from failure.
// Cursors are not restartable; re-iteration requires opening a fresh cursor.
type Cursor[T any] interface {
	// Next returns the next value. ok is false when the sequence is
	// exhausted or an error occurred.
	Next() (value T, ok bool)

	// Err returns the first error encountered while iterating, if any.
	Err() error

	// Close releases resources held by the cursor. Close is idempotent.
	Close() error
}

type sliceCursor[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a cursor over the given slice. The slice is not copied.
func FromSlice[T any](items []T) Cursor[T] {
	return &sliceCursor[T]{items: items}
}

func (c *sliceCursor[T]) Next() (T, bool) {
	var zero T
	if c.pos >= len(c.items) {
		return zero, false
	}
	v := c.items[c.pos]
	c.pos++
	return v, true
}

func (c *sliceCursor[T]) Err() error   { return nil }
func (c *sliceCursor[T]) Close() error { return nil }

// Empty returns a cursor that yields nothing.
func Empty[T any]() Cursor[T] { return &sliceCursor[T]{} }

type mapCursor[T, U any] struct {
	src Cursor[T]
	fn  func(T) U
}

// Map returns a cursor applying fn to every value of src. Closing the
// returned cursor closes src.
func Map[T, U any](src Cursor[T], fn func(T) U) Cursor[U] {
	return &mapCursor[T, U]{src: src, fn: fn}
}

func (c *mapCursor[T, U]) Next() (U, bool) {
	v, ok := c.src.Next()
	if !ok {
		var zero U
		return zero, false
	}
	return c.fn(v), true
}

func (c *mapCursor[T, U]) Err() error   { return c.src.Err() }
func (c *mapCursor[T, U]) Close() error { return c.src.Close() }

// Drain consumes the cursor into a slice and closes it.
func Drain[T any](c Cursor[T]) ([]T, error) {
	defer c.Close()

	var items []T
	for {
		v, ok := c.Next()
		if !ok {
			break
		}
		items = append(items, v)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Count consumes the cursor, returning the number of values it produced.
func Count[T any](c Cursor[T]) (int, error) {
	defer c.Close()

	n := 0
	for {
		if _, ok := c.Next(); !ok {
			break
		}
		n++
	}
	if err := c.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
