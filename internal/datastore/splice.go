package datastore

// clampSplice bounds a splice to a sequence of the given length. Negative
// indices count from the end; the remove count never reaches past the end.
func clampSplice(index, remove, length int) (int, int) {
	if index < 0 {
		index = max(0, index+length)
	} else {
		index = min(index, length)
	}
	count := min(max(remove, 0), length-index)
	return index, count
}

// spliceSlice returns a new slice with count items at index replaced by inserted.
func spliceSlice[T any](values []T, index, count int, inserted []T) []T {
	result := make([]T, 0, len(values)-count+len(inserted))
	result = append(result, values[:index]...)
	result = append(result, inserted...)
	result = append(result, values[index+count:]...)
	return result
}
