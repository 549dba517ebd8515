package utils

func Contains[T comparable](arr []T, item T) bool {
	for _, i := range arr {
		if i == item {
			return true
		}
	}

	return false
}

// Unique drops repeated items, keeping the first occurrence of each.
func Unique[T comparable](arr []T) []T {
	seen := make(map[T]struct{}, len(arr))
	result := make([]T, 0, len(arr))

	for _, i := range arr {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		result = append(result, i)
	}

	return result
}

func SumBy[T any](arr []T, f func(T) int) int {
	total := 0
	for _, i := range arr {
		total += f(i)
	}

	return total
}
