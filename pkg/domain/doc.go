/*
Package domain contains the plain data types shared by the graph engine and its adapters.

It is kept free of I/O and third-party dependencies so that stores, transports and
observers can depend on it without pulling in the executor.

# Key Entities

  - End: the terminal routing target.
  - Checkpoint: the persisted position of an invocation (next node, step, visits, values).
  - NodeEvent / RouteEvent / InvokeEvent: what LifecycleHooks observe.
  - StateDiff: the fields a single step changed.
*/
package domain
