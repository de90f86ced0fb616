/*
Package ports defines the driven ports (interfaces) of the graph engine.

These interfaces decouple the executor from external implementations, allowing
invocations to be checkpointed to various storage backends.

# Key Interfaces

  - CheckpointStore: Persists and loads the position of an invocation (run).
  - DistributedLocker: Serializes access to one run across processes (e.g. resume).
*/
package ports
