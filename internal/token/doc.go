// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

/*
Package token resolves the bearer token attached to outbound gateway calls.

Tokens come from a session store under one of two mutually exclusive key
conventions:

  - Provider session: "sb-<project-ref>-auth-token", a JWT issued by the
    auth provider. The stored value may be either the raw token or the
    provider's JSON session object; both are handled.
  - Dev bypass: any value under the "aquasync-dev-token" key carrying the
    "dev-bypass:" prefix. Accepted only when explicitly enabled.

Absence of a token is not an error: resolution reports "no token" and
requests proceed unauthenticated. Expired provider JWTs are treated as
absent so the gateway never attaches a credential the backend will reject.

Two SessionStore implementations are provided: an in-memory store for tests
and short-lived processes, and a BadgerDB-backed store that survives daemon
restarts.
*/
package token
