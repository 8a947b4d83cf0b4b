// Package energy turns MELCloud's hourly consumption reports into
// monotone running totals.
//
// The cloud reports consumption as per-hour buckets whose values grow
// while the hour is being filled and occasionally glitch downwards. The
// Accumulator ingests each report, credits only the observed increase
// per bucket, and folds the increases into a per-device running total
// that survives restarts via the Store.
//
// # Delta Rules
//
// For each (device, hour bucket) pair across successive reports:
//
//   - First report for an untracked device records every bucket as a
//     baseline and credits nothing. A restart or a freshly added device
//     must not double-count energy already consumed.
//   - A bucket not seen before on a tracked device credits its full
//     value; the hour genuinely started after tracking began.
//   - A value above the previous reading credits the difference.
//   - A value below the previous reading is an anomaly: it is logged
//     and the higher reading is kept. Totals never decrease.
//   - An unchanged value credits nothing.
//
// Bucket records older than the retention window are pruned; the
// running total is never recomputed from buckets, so pruning does not
// lose credited energy.
//
// # Persistence
//
// State is written through the Store after every ingest. Databases from
// before bucket tracking existed hold totals without tracking markers;
// such devices re-baseline on their next report with totals preserved.
package energy
