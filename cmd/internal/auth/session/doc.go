// Package session validates opaque bearer tokens against stored sessions.
//
// Sessions are issued elsewhere (login/signup is a separate system); this
// package only resolves a token to its owning user, enforcing expiry lazily:
// a validation attempt that discovers an expired session deletes it as a side
// effect instead of relying on a background sweep.
package session
