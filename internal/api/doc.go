// Package api provides the HTTP server for the concierge relay.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// The health probe bypasses the middleware stack via a top-level mux,
// ensuring it stays fast and unthrottled for container orchestrators.
//
// # Endpoints
//
// Health probe (no middleware):
//   - GET /health: corpus and backend readiness plus build version
//
// Completions:
//   - POST /chat/completions: OpenAI-compatible streaming chat completions
//
// The completions endpoint speaks SSE in the data-only flavor the upstream
// providers use: each frame is "data: <json>\n\n" and the stream terminates
// with "data: [DONE]\n\n". Request validation failures surface as JSON
// errors before any SSE bytes are written; failures after the stream has
// started surface as a single in-band apology chunk.
package api
