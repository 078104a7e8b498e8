package batch

// SubBatchCount returns ⌈n/capacity⌉
func SubBatchCount(n, capacity int) int {
	if n <= 0 {
		return 0
	}
	if capacity <= 0 {
		capacity = DefaultSubBatchSize
	}
	return (n + capacity - 1) / capacity
}

// Partition splits items into ⌈N/capacity⌉ consecutive sub-batches of at most
// capacity items each, preserving order. Sub-batch k (0-based) has sub id k+1.
func Partition(items []RequestItem, capacity int) [][]RequestItem {
	if capacity <= 0 {
		capacity = DefaultSubBatchSize
	}
	n := SubBatchCount(len(items), capacity)
	parts := make([][]RequestItem, 0, n)
	for start := 0; start < len(items); start += capacity {
		end := start + capacity
		if end > len(items) {
			end = len(items)
		}
		parts = append(parts, items[start:end:end])
	}
	return parts
}
