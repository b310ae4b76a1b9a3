// Package engine is the composition root. It wires configuration into the
// imagery clients, the vegetation tools, a model completer and the agent, and
// exposes one entry point, Ask, which answers a transcript with a stream of
// events.
package engine
