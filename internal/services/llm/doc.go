// Package llm generates SEO alt-text captions for assets through an
// OpenAI-compatible chat completion API.
package llm
