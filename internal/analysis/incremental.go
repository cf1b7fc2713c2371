package analysis

import "fmt"

// BatchBuffer accumulates groups of records in memory and hands them to a
// flush function once Threshold groups are pending. A group is the result
// set of one unit of work, so a flush never splits a unit.
type BatchBuffer[T any] struct {
	Threshold int

	flush   func([]T) error
	items   []T
	groups  int
	flushes int
}

// NewBatchBuffer creates a new batch buffer
func NewBatchBuffer[T any](threshold int, flush func([]T) error) *BatchBuffer[T] {
	if threshold <= 0 {
		threshold = 50 // Default batch size
	}

	return &BatchBuffer[T]{
		Threshold: threshold,
		flush:     flush,
	}
}

// Add buffers one group and flushes when the threshold is reached.
// It reports whether a flush happened.
func (b *BatchBuffer[T]) Add(group []T) (bool, error) {
	if len(group) == 0 {
		return false, nil
	}

	b.items = append(b.items, group...)
	b.groups++

	if b.groups < b.Threshold {
		return false, nil
	}
	if err := b.Flush(); err != nil {
		return false, err
	}
	return true, nil
}

// Flush hands every pending record to the flush function and clears the buffer.
// On error the buffer is kept so the caller may retry.
func (b *BatchBuffer[T]) Flush() error {
	if len(b.items) == 0 {
		return nil
	}

	if err := b.flush(b.items); err != nil {
		return fmt.Errorf("failed to flush %d records: %w", len(b.items), err)
	}

	b.items = nil
	b.groups = 0
	b.flushes++
	return nil
}

// PendingGroups returns the number of buffered groups
func (b *BatchBuffer[T]) PendingGroups() int {
	return b.groups
}

// PendingRecords returns the number of buffered records
func (b *BatchBuffer[T]) PendingRecords() int {
	return len(b.items)
}

// Flushes returns the number of successful flushes so far
func (b *BatchBuffer[T]) Flushes() int {
	return b.flushes
}
