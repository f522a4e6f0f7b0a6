// Package config holds the Recorder Options the façade is constructed
// with : vcache_size, batch_size, debug_graph_path, plus the
// graphstore DSN this expanded build adds. Kept a plain struct with a
// constructor, the way this codebase's packages configure themselves
// (no cobra/viper — see cmd/bohriumctl's plain os.Args dispatch for the
// same preference at the CLI layer).
package config

import "fmt"

// Options configures one façade instance.
type Options struct {
	// VCacheSize bounds the caching allocator's pool size. The core only
	// validates and stores the number; no component in this module reads
	// it or passes it to an Executor (the allocator itself is out of scope,
	// the design).
	VCacheSize int

	// BatchSize is the Recorder's batch-threshold flush trigger. Zero
	// disables the threshold: only explicit Flush and sync opcodes cut
	// batches.
	BatchSize int

	// DebugGraphPath, if non-empty, is a file path graphdump writes the
	// last built Graph's text+DOT dump to after every flush.
	DebugGraphPath string

	// GraphStoreType/GraphStoreDSN configure the optional graphstore
	// history sink. GraphStoreType empty disables it.
	GraphStoreType string
	GraphStoreDSN string
}

// Default returns the Options a façade uses when the caller supplies none:
// a modest batch size, no debug dump, no history sink.
func Default() Options {
	return Options{
		VCacheSize: 10,
		BatchSize: 100,
	}
}

// Validate reports whether the Options are internally consistent.
func (o Options) Validate() error {
	if o.VCacheSize < 0 {
		return fmt.Errorf("config: VCacheSize must be >= 0, got %d", o.VCacheSize)
	}
	if o.BatchSize < 0 {
		return fmt.Errorf("config: BatchSize must be >= 0, got %d", o.BatchSize)
	}
	if o.GraphStoreDSN != "" && o.GraphStoreType == "" {
		return fmt.Errorf("config: GraphStoreDSN set without GraphStoreType")
	}
	return nil
}
