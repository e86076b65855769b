// Package core provides the business logic of the insights dashboard.
//
// This package contains all domain orchestration independent of any UI or
// transport layer. It can be used by web handlers, the CLI or tests without
// modification.
//
// # Architecture
//
// [Service] composes the collaborators behind every dashboard operation:
//
//   - storage.Store persists uploaded files (local directory or Postgres).
//   - table reads CSV and Excel files into typed tables.
//   - pipeline applies search, column filters and chart reductions.
//   - chart renders series as HTML pages.
//   - qa answers questions about a sample of the current view.
//
// # Requests
//
// There is no session state. Every call receives the file, sheet and
// pipeline.Request it operates on, and re-evaluates the pipeline against a
// cached copy of the loaded table:
//
//	v, err := svc.View(ctx, core.ViewRequest{
//	    File:    "20250314_092753_sales.csv",
//	    Request: pipeline.Request{Search: pipeline.SearchQuery{Text: "east"}},
//	})
//
// Search, filter and chart failures are reported on the returned View so the
// dashboard keeps rendering the last good table.
//
// # Access
//
// Upload, Delete and Clear require a context marked with [ContextWithAdmin].
// The web layer sets it after verifying the admin session.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - COL001-COL002: Column errors (missing column, wrong kind)
//   - CHART001: Data unsuitable for the chart type
//   - EXT001-EXT002: Storage or assistant failures
//   - FILE001-FILE009: File errors (size, type, format, not found)
//   - AUTH001-AUTH003, REQ001-REQ003, RATE001, BUSY001: Request errors
//
// # Concurrency
//
// Questions to the assistant are bounded by a [Limiter]; callers beyond the
// limit wait briefly and then fail with [ErrBusy].
package core
