// Package chat runs the conversation: it keeps the message history and
// turns one user message into one streamed assistant reply.
package chat
