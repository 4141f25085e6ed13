// Package itertools adapts [iter.Seq] and [iter.Seq2] sequences.
package itertools

import (
	"fmt"
	"iter"

	"golang.org/x/exp/constraints"
)

func Filter[T any](seq iter.Seq[T], pred func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range seq {
			if pred(v) && !yield(v) {
				return
			}
		}
	}
}

func Filter2[K, V any](seq iter.Seq2[K, V], pred func(K, V) bool) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, v := range seq {
			if pred(k, v) && !yield(k, v) {
				return
			}
		}
	}
}

func Map[Vin, Vout any](seq iter.Seq[Vin], transform func(Vin) Vout) iter.Seq[Vout] {
	return func(yield func(Vout) bool) {
		for v := range seq {
			if !yield(transform(v)) {
				return
			}
		}
	}
}

func Map21[Kin, Vin, Vout any](seq iter.Seq2[Kin, Vin], transform func(Kin, Vin) Vout) iter.Seq[Vout] {
	return func(yield func(Vout) bool) {
		for k, v := range seq {
			if !yield(transform(k, v)) {
				return
			}
		}
	}
}

// Take yields at most n values from seq.
func Take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			if i++; i >= n {
				return
			}
		}
	}
}

func Range[Int constraints.Integer](start, end Int) iter.Seq[Int] {
	return func(yield func(Int) bool) {
		for i := start; i < end; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

func Stringify[V fmt.Stringer](seq iter.Seq[V]) iter.Seq[string] {
	return Map(seq, func(v V) string { return v.String() })
}
