// Package token manages the OAuth2 credential lifecycle for calendar
// accounts.
//
// Immediately after any call into the calendar provider for an account, that
// account's access token is guaranteed non-expired: every access goes through
// ValidAccessToken, which refreshes the token when less than five minutes of
// validity remain and persists the result before returning.
package token
