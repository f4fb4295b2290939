// Package rebatch provides a resumable batch processing engine for Go.
// It drives an external, per-item extraction operation over an ordered
// collection of work items in fixed-size batches, with durable
// checkpointing, bounded retries, and crash-safe resume.
//
// Rebatch is designed as a library, not a service. Import it, wire a
// source, an extractor, a sink, and a checkpoint store into an
// engine.Supervisor, and call Run.
//
// # Quick Start
//
//	sup, err := engine.New(rebatch.DefaultConfig(),
//	    csvsource.New("items.csv"),
//	    extractor,
//	    csvsink.New("results.csv"),
//	    filestore.New("run.checkpoint.json"),
//	)
//	summary, err := sup.Run(ctx)
//
// # Architecture
//
// Each concern lives in its own package: work items and outcomes in
// item, durable run state in run, the checkpoint store contract in
// checkpoint (with file, memory, redis, and bun/Postgres backends),
// item sources and result sinks in source and sink, retry spacing in
// backoff, extraction middleware in middleware, lifecycle hooks in
// hook, and the supervisor loop in engine.
//
// Run identifiers use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package rebatch
