// Package gemini implements [hangar.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between hangar's
// domain types and the Gemini API types.
package gemini

const (
	defaultModel     = "gemini-2.5-pro"
	defaultMaxTokens = 8192
)
