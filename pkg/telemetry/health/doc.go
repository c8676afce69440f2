// Package health provides liveness and readiness probes for the admin server.
//
// # Endpoints
//
//   - telemetry.health.liveness_path (default /health): the process is running
//   - telemetry.health.readiness_path (default /ready): every registered check passes
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("listener", health.ListenerCheck(srv.Addr))
//	checker.RegisterCheck("certificate", health.CertificateCheck(reloader.GetCertificate))
//	checker.Mount(mux, cfg.Telemetry.Health, health.VersionInfo{Version: version})
//
// # Liveness vs Readiness
//
// Liveness never runs component checks; a failing liveness probe gets the
// process restarted. Readiness runs all checks concurrently, each bounded by
// the checker timeout, and answers 503 when one fails. After SetStopping the
// readiness probe answers 503 with status "stopping" while connections drain.
package health
