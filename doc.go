// Package walkthrough coordinates guided replays of recorded browser
// workflows. A single background coordinator owns the active walkthrough
// session, drives it through a step state machine, and accepts signals
// from in-page agents running in one or more browser tabs.
//
// The coordinator is a library first. Pick a store, build an engine, and
// mount the wire protocol and companion bridge on an HTTP router:
//
//	eng, err := engine.Build(
//	    engine.WithStore(memory.New()),
//	    engine.WithCatalog(catalog.NewDir("./workflows")),
//	)
//	srv := wire.NewServer(eng.Broker(), wire.NewHandler(eng.Gateway(), eng.Router(), logger))
//
// # Architecture
//
// The session manager (package session) is the single source of truth and
// the only mutator of the session record. The state machine (package
// machine) is a pure reducer over a closed set of events. The router
// (package router) maps navigation commands onto events and owns the
// delayed auto-advance, and the gateway (package gateway) validates every
// inbound page signal against the current step before dispatching it.
//
// Page contexts race with each other and with timers. Every signal is
// checked against the session id, step index and machine state inside the
// session manager's critical section; anything that no longer matches is
// acknowledged and dropped.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package walkthrough
