package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/status.
type StatusResponse struct {
	Service ServiceStatus `json:"service"`
	Gateway GatewayStatus `json:"gateway"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// GatewayStatus holds connection counts.
type GatewayStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	version := s.deps.Version
	if version == "" {
		version = "dev"
	}

	var connected int
	s.clients.Range(func(_, _ any) bool {
		connected++
		return true
	})

	writeJSON(w, http.StatusOK, StatusResponse{
		Service: ServiceStatus{
			Name:          "agentmesh",
			Version:       version,
			UptimeSeconds: int64(time.Since(s.deps.StartTime).Seconds()),
		},
		Gateway: GatewayStatus{ConnectedClients: connected},
	})
}
