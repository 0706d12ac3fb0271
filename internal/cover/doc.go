// Package cover provides the window-cover decision engine for Gray Logic Shutters.
//
// Every configured cover (roller shutter, blind, awning) gets its own Engine.
// On each tick or tracked state change the engine reads its sensors, walks an
// ordered rule cascade and issues at most one set-position command. A
// Coordinator owns the engines of one configured entry and routes control
// operations to them by cover identifier.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                 Coordinator (coordinator.go)              │
//	│   entry options ⊕ defaults ──▶ map[cover]*Engine          │
//	│        │                                                  │
//	│        ▼                                                  │
//	│  ┌───────────────────────────────────────────────────┐   │
//	│  │  Engine (engine.go), one per cover                 │   │
//	│  │  1. Expire override                                │   │
//	│  │  2. Detect manual movement (cover state events)    │   │
//	│  │  3. Scope-all override? stop                       │   │
//	│  │  4. Rule cascade (rules.go), first match wins      │   │
//	│  │  5. Refresh next open/close, publish Snapshot      │   │
//	│  └───────────────────────────────────────────────────┘   │
//	│        │                     │                            │
//	│   StateStore/EventSource  CommandSink        Publisher    │
//	└──────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Options: loosely typed configuration with coercing getters
//   - Engine: per-cover decision state machine
//   - Coordinator: per-entry engine owner
//   - Registry: all coordinators, looked up by entry or cover
//   - Snapshot: the externally visible state of one engine
//   - Broadcaster: fan-out Publisher for snapshot listeners
//
// # Thread Safety
//
// Engine serialises evaluation and control operations with a per-engine
// mutex. Recalibration waits for the cover outside that lock. Coordinator,
// Registry and Broadcaster are safe for concurrent use.
//
// # Usage
//
//	coord := cover.NewCoordinator("entry-1", data, stored, cover.Deps{
//	    Store:     bus,
//	    Events:    bus,
//	    Sink:      bus,
//	    Publisher: broadcaster,
//	    Logger:    log,
//	})
//	if err := coord.Setup(ctx); err != nil {
//	    return err
//	}
//	defer coord.Teardown()
//
//	coord.SetManualOverride("cover.living_room", nil)
package cover
