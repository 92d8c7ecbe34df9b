package mockserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// StatusResponse is the JSON body returned by GET /healthz.
type StatusResponse struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Peers         int   `json:"peers"`
	Connections   int64 `json:"connections_total"`
	Calls         int64 `json:"calls_total"`
	Notifications int64 `json:"notifications_total"`
	Errors        int64 `json:"errors_total"`
}

type stats struct {
	started       time.Time
	connections   atomic.Int64
	calls         atomic.Int64
	notifications atomic.Int64
	errors        atomic.Int64
}

func (st *stats) snapshot(peers int) StatusResponse {
	var uptime int64
	if !st.started.IsZero() {
		uptime = int64(time.Since(st.started).Seconds())
	}
	return StatusResponse{
		UptimeSeconds: uptime,
		Peers:         peers,
		Connections:   st.connections.Load(),
		Calls:         st.calls.Load(),
		Notifications: st.notifications.Load(),
		Errors:        st.errors.Load(),
	}
}

func (st *stats) handler(peers func() int) http.HandlerFunc {
	st.started = time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st.snapshot(peers()))
	}
}
