// Package conv converts segment ordinals between Go's int and the uint32 used
// by the graph and the filters, with bounds checking.
package conv
