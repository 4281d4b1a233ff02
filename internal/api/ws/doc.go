// Package ws streams process state events over WebSocket.
//
// Every connection subscribes to the application manager's event hub and
// receives one JSON message per event. An optional ?process=<name> query
// restricts the stream to a single process.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established
//   - event: A process state event
//   - pong: Reply to ping
//   - error: Unknown or malformed client message
//
// Example Usage:
//
//	handler := ws.NewHandler(appManager.Hub(), logger, metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
