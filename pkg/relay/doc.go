// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package relay bridges one realtime completion WebSocket to one client-facing
// server-sent event stream. A Session lives exactly as long as the client
// request that created it: it dials the upstream, sends the session
// configuration, the user prompt and a generate request in that order, then
// forwards every upstream event as a "data:" frame until the response is
// done, the upstream goes away, or the client disconnects.
package relay
