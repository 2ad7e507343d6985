// Package memo holds the context memo threaded through a pipeline run.
//
// A memo is a value. Create populates the input namespace, and each later
// stage may contribute exactly one namespace through Extend, which returns
// a new memo and leaves its argument untouched. Writing a namespace twice
// is a Violation.
//
// Fingerprint hashes the canonical CBOR form of the memo with a keyed
// BLAKE3 hash. The orchestrator records it with every persisted state and
// calls Verify on load, so a memo written by a different schema, or edited
// out of band, surfaces as SchemaMismatch instead of feeding later stages.
//
// The Validate* and DetectHallucinations helpers check generated output
// against the memo. They never modify it.
package memo
