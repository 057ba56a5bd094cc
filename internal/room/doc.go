// Package room drives schedules for Hearth Core.
//
// A room binds one schedule to one or more actors. The manager owns
// all rooms, re-evaluates each schedule whenever its outcome can
// change, and turns outcomes into actor commands on the broker.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                 Manager (manager.go)                     │
//	│  Builds rooms from a schedule document, fans entity      │
//	│  state out, owns the shared evaluator and time source    │
//	│                                                          │
//	│  ┌───────────────────── Room ──────────────────────┐    │
//	│  │  1. Evaluate schedule (scheduling timers,        │    │
//	│  │     re-schedule expiry, explicit triggers)       │    │
//	│  │  2. Suppress unchanged outcomes                  │    │
//	│  │  3. Persist scheduled value (Repository)         │    │
//	│  │  4. FilterValue/Command per actor → MQTT         │    │
//	│  │  5. Announce: room value topic, WebSocket        │    │
//	│  │     event, history point, audit record           │    │
//	│  └──────────────────────────────────────────────────┘    │
//	│        ▲                                    │            │
//	│        │ state reports                      ▼ commands   │
//	│  entity.Registry ◀── broker ──▶ CommandPublisher         │
//	└─────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Manager: Owns all rooms, routes state reports and API calls
//   - Room: One schedule, its actors and the override timer
//   - Override: A manual value or expression request
//   - Repository: Persistence for scheduled values across restarts
//   - Status: Read-only room snapshot for the API
//
// # Value Tracking
//
// Each room tracks two values. The scheduled value is the last
// schedule outcome; it is persisted and suppresses re-sending an
// outcome that has not changed, including across restarts. The wanted
// value is the last value actually commanded, scheduled or manual.
// A state report matching an actor's last known value is treated as
// the echo of our own command; anything else is an external change,
// which is replicated to the room's other actors when configured and
// starts the re-schedule timer. While that timer runs the schedule is
// held off, so the manual value survives until the timer expires and
// the schedule is re-applied.
//
// # Thread Safety
//
// Manager and Room are safe for concurrent use. Scheduling timers run
// in per-room goroutines started by Start and stopped via context
// cancellation; re-schedule timers fire on their own goroutines and
// take the room lock like any other caller.
//
// # Usage
//
//	doc, err := schedule.LoadDocument("schedules.yaml")
//	if err != nil {
//	    return err
//	}
//
//	manager, err := room.NewManager(room.Config{
//	    Document: doc,
//	    Entities: registry,
//	    Repo:     room.NewSQLiteRepository(db),
//	    Commands: broker,
//	    Logger:   log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := manager.Start(ctx); err != nil {
//	    return err
//	}
//	defer manager.Stop()
package room
