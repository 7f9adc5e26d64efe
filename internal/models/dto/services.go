package dto

// ServiceAddRequest is the body of POST /monitored-services.
type ServiceAddRequest struct {
	ServiceName string `json:"service_name"`
}

// ServiceBatchRequest is the body of POST /monitored-services/batch.
type ServiceBatchRequest struct {
	Services []string `json:"services"`
}

// ServiceAddResponse echoes the monitored list after an add.
type ServiceAddResponse struct {
	Message  string   `json:"message"`
	Services []string `json:"services"`
}

// ServiceBatchResponse splits a batch into added and unknown names.
type ServiceBatchResponse struct {
	Message        string   `json:"message"`
	Added          []string `json:"added"`
	NotFound       []string `json:"not_found"`
	TotalMonitored int      `json:"total_monitored"`
}

// AvailableService is the summary row returned by GET /available-services.
type AvailableService struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     string `json:"enabled"`
	Loaded      bool   `json:"loaded"`
}

// ControlResponse is returned by a successful service-control call.
type ControlResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ReturnCode int    `json:"return_code"`
}

// LogsResponse carries journal lines, or the journalctl error.
type LogsResponse struct {
	Logs  []string `json:"logs"`
	Error string   `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status                 string `json:"status"`
	Timestamp              string `json:"timestamp"`
	Uptime                 string `json:"uptime"`
	MonitoredServicesCount int    `json:"monitored_services_count"`
}
