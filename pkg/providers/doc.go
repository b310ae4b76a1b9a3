// Package providers groups the LLM provider adapters. Each sub-package
// implements [github.com/Berektassuly/terra-vision-ai/pkg/modeladapter.StreamCompleter]:
//   - [github.com/Berektassuly/terra-vision-ai/pkg/providers/anthropic]: Anthropic Messages API
//   - [github.com/Berektassuly/terra-vision-ai/pkg/providers/openai]: OpenAI Chat Completions and compatible endpoints such as xAI
//   - [github.com/Berektassuly/terra-vision-ai/pkg/providers/gemini]: Google Gemini
package providers
