// Package dispatch abstracts push-delivery providers behind a single
// adapter interface and a provider-keyed registry.
//
// Adapters translate the provider-agnostic Request into each provider's
// native urgency, expiration, and payload shape, and fold every failure mode
// into a uniform Response instead of returning errors, so a caller fanning
// out to many devices never aborts on a single provider rejection. Sending
// through an unregistered provider is rejected immediately without a
// network call.
//
// The package also ships a token Blacklist (memory and redis backed) fed by
// invalid-token responses, so dead tokens are skipped instead of re-sent on
// every dispatch.
package dispatch
