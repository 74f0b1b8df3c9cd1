// Package dataloader provides generic helpers for loading entities in
// batches by key.
//
// A batch read returns rows in whatever order the database produced them.
// The helpers regroup and reorder such results to match the requested keys:
//
//	var all []*entity.Instance
//	for _, chunk := range dataloader.Chunks(ids, 500) {
//	    is, err := readInstances(ctx, chunk)
//	    ...
//	    all = append(all, is...)
//	}
//	ordered, errs := dataloader.OrderByKeys(ids, all, func(i *entity.Instance) string { return i.ID })
package dataloader

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads the entities of a batch of keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
// Repeated keys yield the same entity at every position.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// FirstError returns the index and error of the first non-nil error, or
// -1 and nil.
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

// GroupByKey groups entities by a key function, keeping their order within
// each group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every requested key, in key order.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Chunks splits keys into consecutive batches of at most size keys. A
// non-positive size returns a single batch.
func Chunks[K any](keys []K, size int) [][]K {
	if len(keys) == 0 {
		return nil
	}
	if size <= 0 || len(keys) <= size {
		return [][]K{keys}
	}
	out := make([][]K, 0, (len(keys)+size-1)/size)
	for len(keys) > size {
		out = append(out, keys[:size:size])
		keys = keys[size:]
	}
	return append(out, keys)
}

// Load runs fn over the deduplicated keys in batches of at most size keys
// and returns the entities ordered by keys.
func Load[K comparable, V any](ctx context.Context, keys []K, size int, fn BatchFunc[K, V], keyFn KeyFunc[K, V]) ([]V, []error, error) {
	seen := make(map[K]struct{}, len(keys))
	uniq := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			uniq = append(uniq, k)
		}
	}
	var all []V
	for _, chunk := range Chunks(uniq, size) {
		vs, err := fn(ctx, chunk)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, vs...)
	}
	ordered, errs := OrderByKeys(keys, all, keyFn)
	return ordered, errs, nil
}
