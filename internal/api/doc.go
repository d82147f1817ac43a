// Package api implements the HTTP REST API and WebSocket server for Graychat Core.
//
// This package provides:
//   - account endpoints (register, login, logout, check, edit)
//   - room endpoints gated by the room access policy
//   - a WebSocket hub whose connections are authorized once at handshake
//   - Middleware stack (request ID, access log and metrics, recovery, CORS)
//   - Prometheus exposition on the configured metrics path
//
// # Authorization
//
// Every protected route runs two checks in order: identity (requireIdentity
// or optionalIdentity) and then, for room routes, authorizeRoom, which loads
// the room and applies room.Decide. A handler only runs after both pass.
//
// WebSocket connections are upgraded first and then authorized. A rejected
// connection receives {"success":false,"message":...} followed by a close
// frame. Room updates and deletes re-run the same decision against live
// connections in that room.
//
// # Security
//
// Session credentials travel in the "jwt" cookie (or an Authorization
// bearer header for HTTP routes). They are never logged.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
