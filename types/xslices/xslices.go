// Package xslices implements generic slice helpers used throughout the library.
package xslices

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Iota returns a slice of incremental int values, starting with start and of length len.
// E.g.: Iota(3, 2) -> []int{3, 4}
func Iota[T interface {
	constraints.Integer | constraints.Float
}](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// SliceWithValue creates a slice of the given size filled with the given value.
func SliceWithValue[T any](size int, value T) []T {
	s := make([]T, size)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// FillSlice fills the slice with the given value.
func FillSlice[T any](slice []T, value T) {
	for ii := range slice {
		slice[ii] = value
	}
}

// Copy returns a fresh copy of the given slice. A nil input returns nil.
func Copy[T any](slice []T) []T {
	if slice == nil {
		return nil
	}
	s := make([]T, len(slice))
	copy(s, slice)
	return s
}

// Last returns the last element of the slice.
func Last[T any](slice []T) T {
	return slice[len(slice)-1]
}

// SortedAndUnique returns a sorted copy of the slice with duplicate values removed.
// The input slice is not modified.
func SortedAndUnique[T constraints.Ordered](slice []T) []T {
	if len(slice) == 0 {
		return nil
	}
	s := Copy(slice)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	unique := s[:1]
	for _, v := range s[1:] {
		if v != Last(unique) {
			unique = append(unique, v)
		}
	}
	return unique
}

// IsIdentity reports whether slice[i] == i for every position.
func IsIdentity[T constraints.Integer](slice []T) bool {
	for ii, v := range slice {
		if v != T(ii) {
			return false
		}
	}
	return true
}
