// Package genx is the streaming text generation layer behind the chat
// controller. A Generator turns a ModelContext (system prompts, messages
// and sampling parameters) into a Stream of MessageChunks.
//
// Two generators are provided: OpenAIGenerator speaks the OpenAI chat
// completions protocol (Groq and OpenAI both serve it) and
// GeminiGenerator uses Google's genai SDK. Mux routes a model name to the
// generator registered for it.
package genx
