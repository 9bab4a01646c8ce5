package segalloc

import "github.com/mvyskoc/segalloc/arena"

// ErrOutOfMemory is spec.md §7's single allocation-failure condition:
// the arena refused an extension. Every allocation-producing method
// returns arena.Null together with the arena's error, unwrapped; that
// error is this value when the arena's reservation is exhausted.
var ErrOutOfMemory = arena.ErrOutOfMemory
