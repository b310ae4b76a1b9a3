// Package modeladapter defines the interface and shared state for LLM
// completion adapters.
//
// It contains:
//   - [Completer] and [StreamCompleter] interfaces, and the [Stream] helper that streams when a completer can
//   - the embeddable [ModelAdapter] base struct with model settings and usage tracking
//   - [github.com/Berektassuly/terra-vision-ai/pkg/modeladapter/usage], a thread-safe token usage tracker
//
// This package contains no provider-specific code; concrete adapters live in
// pkg/providers and talk to their vendor through the vendor's SDK.
package modeladapter
