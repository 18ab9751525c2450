// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package forward talks to the intermediary forward proxy. The proxy exposes
// a single forwarding endpoint that takes the real target URL in its "u"
// query parameter and a base64 forward token as bearer credential, then
// relays the request to the target with the provider credentials attached.
// Both plain HTTP requests and WebSocket upgrades go through that endpoint.
package forward
