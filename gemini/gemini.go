// Package gemini implements [letsim.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between letsim's
// domain types and the Gemini API types. Streaming uses the SDK's iter.Seq2
// iterator, wrapped into the pull-based [letsim.Stream] interface. Function
// calls arrive whole, so each one becomes a single
// [letsim.EventToolCallDelta] carrying the complete arguments.
package gemini

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 65536
)
