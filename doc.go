// Package opentrack is an analytics event delivery core: one incoming
// Segment-style event is fanned out concurrently to every configured
// destination, with per-destination failure isolation, error classification,
// and exponential-backoff retry.
//
// # Architecture
//
// Events enter through router.Router, which validates the payload and runs
// one delivery goroutine per destination. Destinations are self-registering
// adapters (pkg/destinations) built once at startup from the typed
// configuration (pkg/config):
//
//   - bigquery: transforms the event into one flat snake_cased row per
//     destination table and inserts it through a schema-synchronizing table
//     manager (pkg/warehouse) that creates tables, widens column types along
//     a fixed relaxation table, and caches remote schemas with a TTL.
//   - crm: upserts contacts and companies and records activity via a REST
//     API.
//   - webhook: posts the raw event JSON to a configured endpoint.
//
// Failures are normalized into classified errors (pkg/errors) before the
// retry loop (pkg/retry) decides whether another attempt is worthwhile. A
// destination failing, timing out, or exhausting its retry budget never
// affects delivery to its siblings; the router reports one outcome per
// destination.
package opentrack
