// Package utils holds small generic helpers shared across the project:
// functional slice processing and membership checks.
package utils

// filter
type keepFunc[E any] func(E) bool

// Filter function definition of a functional programming "function"
func Filter[S ~[]E, E any](s S, f keepFunc[E]) S {
	result := S{}
	for _, v := range s {
		if f(v) {
			result = append(result, v)
		}
	}

	return result
}

// Contains function iterates over a slice of strings and checks if the given string is there
// if you want to avoid the slices.Contains package function
func Contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}

	return false
}
