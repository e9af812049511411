// Package services defines shared utilities consumed by the update stages
// and external tool adapters.
//
// Key responsibilities:
//   - Context helpers that stamp target, component, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper so failures carry
//     consistent component/operation detail into the run report.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the run.
package services
