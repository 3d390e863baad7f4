// Package engine assembles the walkthrough coordinator from its parts:
// the session manager over a store, the stream broker, the advance
// scheduler and router, the message gateway, the page connection server
// and the companion bridge.
//
//	s, _ := sqlite.Open("file:walkthrough.db")
//	_ = s.Migrate(ctx)
//
//	cat, _ := catalog.Open("./workflows")
//	eng, err := engine.Build(walkthrough.DefaultConfig(), s,
//	    engine.WithCatalog(cat),
//	    engine.WithLogger(logger),
//	)
//	defer eng.Stop(ctx)
//
//	http.ListenAndServe(":8080", api.New(eng).Handler())
//
// # Options
//
//   - [WithLogger] — set the shared logger
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to the message chain
//   - [WithCatalog] — set the workflow catalog
//   - [WithHealer] — set the locator healer
//   - [WithAuth] — authenticate page connections
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
