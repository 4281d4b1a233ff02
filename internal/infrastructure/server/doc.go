// Package server wires configuration, system parameters, bundle manifests,
// the process cache and the application manager behind the REST, WebSocket
// and gRPC health endpoints.
//
// Example Usage:
//
//	srv, err := server.New(config.LoadOrDefault())
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
