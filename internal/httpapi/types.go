package httpapi

type PipelineStatus struct {
	LastRunAt string `json:"last_run_at"`
	LastOkAt  string `json:"last_ok_at"`
	LastError string `json:"last_error"`
	Running   bool   `json:"running"`
	Stage     string `json:"stage,omitempty"`
}
