package netstatsd

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// Set is used for storing the distinct values seen for a set.
type Set struct {
	Values map[string]struct{}
}

// NewSet initialises a new set holding the given value.
func NewSet(value string) Set {
	return Set{Values: map[string]struct{}{value: {}}}
}

// Count returns the cardinality of the set.
func (s Set) Count() int {
	return len(s.Values)
}

// Members returns the values of the set in sorted order.
func (s Set) Members() []string {
	members := make([]string, 0, len(s.Values))
	for v := range s.Values {
		members = append(members, v)
	}
	sort.Strings(members)
	return members
}

// MarshalJSON reports the cardinality, which is the statistic backends consume.
func (s Set) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(struct {
		Count int `json:"count"`
	}{s.Count()})
}

// Sets stores a map of sets by key.
type Sets map[string]Set

// MetricsName returns the name of the aggregated metrics collection.
func (s Sets) MetricsName() string {
	return "Sets"
}

// Delete deletes the metrics from the collection.
func (s Sets) Delete(k string) {
	delete(s, k)
}

// Each iterates over each set.
func (s Sets) Each(f func(key string, s Set)) {
	for key, set := range s {
		f(key, set)
	}
}

// Keys returns the metric names in sorted order.
func (s Sets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
