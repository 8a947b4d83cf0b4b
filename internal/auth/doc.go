// Package auth issues and validates the bearer tokens protecting the
// melbridge API.
//
// The bridge has no user store. Tokens are signed with the shared
// secret from the security config; any holder of the secret can mint a
// token for an integration (Home Assistant, a dashboard, a script) and
// the bridge validates signature and expiry only.
//
//	token, err := auth.GenerateToken("home-assistant", secret, 1440)
//	claims, err := auth.ParseToken(token, secret)
package auth
