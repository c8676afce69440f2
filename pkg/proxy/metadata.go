package proxy

import "time"

// Outcomes reported for exchanges and tunnels.
const (
	OutcomeForwarded  = "forwarded"
	OutcomeHalted     = "halted"
	OutcomeTimeout    = "timeout"
	OutcomeBadGateway = "bad_gateway"
	OutcomeError      = "error"
	OutcomeAborted    = "aborted"
	OutcomeRejected   = "rejected"
	OutcomeClosed     = "closed"
	OutcomeCanceled   = "canceled"
)

// ExchangeMetadata describes one request handled by the forwarding pipeline.
// It is handed to the Recorder once the exchange is over.
type ExchangeMetadata struct {
	// CorrelationID identifies the client connection.
	CorrelationID string

	// Protocol is the engine that accepted the request.
	Protocol string

	// Method is the HTTP method.
	Method string

	// Host is the origin host of the resolved URL.
	Host string

	// StatusCode is the status sent to the client.
	StatusCode int

	// Outcome is one of the Outcome constants.
	Outcome string

	// Latency is the total time spent in the pipeline.
	Latency time.Duration

	// UpstreamLatency is the time until the origin answered with headers.
	UpstreamLatency time.Duration

	// BytesWritten is the number of body bytes sent to the client.
	BytesWritten int64
}

// TunnelMetadata describes one CONNECT session.
type TunnelMetadata struct {
	CorrelationID string
	Protocol      string
	Target        string
	Outcome       string
	Duration      time.Duration

	// BytesIn counts bytes from the client, BytesOut bytes to it.
	BytesIn  int64
	BytesOut int64
}

// Recorder receives a record of every finished exchange and tunnel.
type Recorder interface {
	RecordExchange(m *ExchangeMetadata)
	RecordTunnel(m *TunnelMetadata)
}

type nopRecorder struct{}

func (nopRecorder) RecordExchange(*ExchangeMetadata) {}
func (nopRecorder) RecordTunnel(*TunnelMetadata)     {}
