// Package httpclient provides the shared upstream HTTP client: connect and
// write phases are bounded, the read/streaming phase is intentionally
// unbounded (spec §5 "read timeout is unbounded for the streaming phase").
// Grounded on the teacher's relay/adaptor/common.go client.HTTPClient
// singleton idiom.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/relaygate/relaygate/common/config"
)

// Streaming is the process-wide client used by every ProviderClient to open
// upstream streaming requests. It has no overall Timeout field set: only the
// dial, the TLS handshake and the wait for response headers are bounded, so
// a long-running tool-use turn is never truncated mid-stream.
var Streaming = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: time.Duration(config.ConnectTimeoutSeconds) * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   time.Duration(config.ConnectTimeoutSeconds) * time.Second,
		ResponseHeaderTimeout: time.Duration(config.WriteTimeoutSeconds) * time.Second,
	},
}
