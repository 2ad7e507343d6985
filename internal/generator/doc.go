// Package generator is the content-generation collaborator behind the
// research, design and content stages.
//
// A Client turns a prompt into text using the model selected by the stage
// tier. Three providers exist: anthropic (plain HTTP with a client-side rate
// limiter), openai (through langchaingo) and static (deterministic offline
// output for demos and tests). Stages wraps a Client into stage.Func values
// and enforces the content guard before any page is accepted.
//
// Transport failures, HTTP 429 and 5xx are marked stage.Retryable. Every
// other failure, including unparseable model output and policy violations,
// is stage.NonRetryable.
package generator
