package ticks

// actionHeap implements heap.Interface ordered by TimedAction.Before.
type actionHeap[T comparable] struct {
	items []TimedAction[T]
}

func (h *actionHeap[T]) Len() int { return len(h.items) }

func (h *actionHeap[T]) Less(i, j int) bool { return h.items[i].Before(h.items[j]) }

func (h *actionHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *actionHeap[T]) Push(x any) { h.items = append(h.items, x.(TimedAction[T])) }

func (h *actionHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero TimedAction[T]
	old[n-1] = zero
	h.items = old[:n-1]
	return item
}
