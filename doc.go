// Package libbtrace provides the control plane of a trace-processing
// pipeline: a directed graph of stream-producing, filtering and
// consuming components, connected through typed ports and driven by a
// pull-based message-iteration protocol over a structured trace data
// model.
//
// # Architecture
//
// The module splits into four layers:
//
// Ownership layer (native, object):
//   - native: the opaque object engine handing out reference-counted
//     handles with destruction hooks
//   - object: shared and unique reference disciplines over those
//     handles
//
// Data model (trace, field, message):
//   - trace: trace/stream/event class schemas, clock classes, and
//     their instances
//   - field: the recursive field-class type system with field paths
//     and integer range sets
//   - message: the eight message kinds flowing through a graph, with
//     their clock-snapshot rules
//
// Processing graph (graph, plugin, processor, query):
//   - graph: components, ports, connections, message iterators and
//     the run loop
//   - plugin: named bundles of component classes plus a registry
//   - processor/muxer, processor/trimmer: the builtin utils classes
//   - query: component-class queries, support-info discovery and
//     trace-infos parsing
//
// Orchestration (collection, config, cmd/btrace):
//
//   - collection: assembles sources, muxer, trimmers and filters into
//     one graph and iterates its merged flow
//
//   - config: JSON pipeline documents validated against a schema
//
//   - cmd/btrace: the command-line runner
//
//     ┌───────────────────────────────────┐
//     │       collection.Iterator         │  discovery, assembly,
//     │  (sources → muxer → filters)      │  merged iteration
//     └───────────────────────────────────┘
//     ↓ drives
//     ┌───────────────────────────────────┐
//     │           graph.Graph             │  components, ports,
//     │  (consume loop, iterators, seek)  │  connections
//     └───────────────────────────────────┘
//     ↓ carries
//     ┌───────────────────────────────────┐
//     │         message / trace           │  events, packets,
//     │   (classes, instances, clocks)    │  clock snapshots
//     └───────────────────────────────────┘
//     ↓ owned by
//     ┌───────────────────────────────────┐
//     │         object / native           │  shared/unique refs,
//     │  (refcounts, destruction hooks)   │  leak detection
//     └───────────────────────────────────┘
//
// Errors across the module carry a behavioral classification
// (transient, invalid, fatal) so callers can decide between retrying,
// fixing their input, or tearing the pipeline down; see the errors
// package.
package libbtrace
