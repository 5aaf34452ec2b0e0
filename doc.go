// Package lichessauth implements the server side of the Lichess OAuth2
// authorization code flow with PKCE, and the session lifecycle that
// follows a successful login.
//
// Lichess treats every application as a public client: there is no
// client secret, and each authorization request must carry a PKCE
// challenge. The library generates the verifier/challenge pair, tracks
// the in-flight attempt under its anti-CSRF state, exchanges the
// returned code for tokens, and stores the result as a server-side
// session addressed by an opaque cookie-carried identifier.
//
// The Server type holds the flow logic; Handler exposes it over HTTP
// (login, callback, logout and a session info endpoint). Consumers that
// call Lichess APIs on behalf of a user obtain a bearer token through
// Server.ValidAccessToken, which refreshes expired tokens transparently
// and coalesces concurrent refreshes per session.
package lichessauth
