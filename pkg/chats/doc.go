// Package chats provides a provider-agnostic data model for the conversations
// exchanged between a caller, the orchestrator and a language model.
//
// It is organized into sub-packages:
//   - [github.com/Berektassuly/terra-vision-ai/pkg/chats/role] — conversation roles (system, user, assistant, tool)
//   - [github.com/Berektassuly/terra-vision-ai/pkg/chats/content] — content parts (text, image, tool call, tool result)
//   - [github.com/Berektassuly/terra-vision-ai/pkg/chats/message] — messages composed of a role, sender and parts
//   - [github.com/Berektassuly/terra-vision-ai/pkg/chats/chat] — ordered conversation container
//   - [github.com/Berektassuly/terra-vision-ai/pkg/chats/transcript] — the JSON transcript accepted at the request boundary
//
// No provider or API code is included.
package chats
