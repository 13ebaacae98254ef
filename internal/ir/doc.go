// Package ir holds the value model shared by operation parameters, project
// documents and object snapshots.
//
// ir imports nothing internal; every other package may import it.
//
// Key constraints:
//   - Values form a sealed set (Null, String, Int, Float, Bool, Array, Object)
//   - MarshalCanonical (RFC 8785) is the only input to identity hashes
//   - Floats must be finite; integral floats hash the same as ints
package ir
