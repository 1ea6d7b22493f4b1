// Package analysis is the boundary to the external AI text-completion service.
//
// Every call goes through the Analyzer interface:
//
//	text, err := a.Analyze(ctx, analysis.Request{
//	    Kind:    analysis.KindFile,
//	    Path:    "Sub/c.cs",
//	    Context: contextDocument,
//	    Content: source,
//	})
//
// # Error Taxonomy
//
// Failures are classified as *TransientError (rate limiting, timeouts,
// transport failures, 5xx responses) or *PermanentError (malformed input,
// rejected credentials, other 4xx responses). Callers decide whether to retry
// with IsTransient; the package itself never retries and never limits
// concurrency.
//
// # Providers
//
//   - deepseek: OpenAI-compatible endpoint at https://api.deepseek.com/v1 (default)
//   - openai: the OpenAI chat completion API
//   - offline: deterministic local outlines, no network access
//
// Remote providers share one client built on github.com/sashabaranov/go-openai.
// Responses are cached in an LRU keyed by the SHA-256 of the request.
package analysis
