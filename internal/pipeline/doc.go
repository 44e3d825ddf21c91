// Package pipeline enriches listing records one stage at a time.
//
// Every record is carried through the same ordered steps: address
// normalization, geocode lookup, owner resolution and contact resolution.
// Each step receives the lead produced so far and may fill in its part of
// it. A stage that cannot produce a value records a model.StageFailure on
// the lead and returns nil, so one bad record or one flaky site never stops
// the rest of the lead or the rest of the run.
//
// BatchProcessor runs the per-record pipelines concurrently with errgroup,
// and Runner ties acquisition, batch geocoding and the batch together into a
// single run.
package pipeline
