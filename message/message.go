// Package message defines the monitor messages exchanged between collectors,
// the center and viewers.
//
// Messages encode themselves in protobuf wire format (codec.ProtoCodec) and
// carry JSON tags for codec.JSONCodec.
package message

// ResultCode is the application-level outcome carried in every response.
type ResultCode struct {
	ErrCode int32  `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// MetricsData is one sample reported by a collector.
//
// CPUUsage and MemoryUsage are percentages. A query for the latest sample of
// every host reports -1 for both when the host is offline.
type MetricsData struct {
	ServerName  string  `json:"server_name"`
	Timestamp   int64   `json:"timestamp"` // Unix milliseconds
	CPUUsage    float32 `json:"cpu_usage"`
	MemoryUsage float32 `json:"memory_usage"`
}

type ReportRequest struct {
	Metrics MetricsData `json:"metrics"`
}

type ReportResponse struct {
	Result  ResultCode `json:"result"`
	Success bool       `json:"success"`
}

// QueryRequest asks for one host's history, or for the latest sample of every
// host when ServerName is empty.
type QueryRequest struct {
	ServerName string `json:"server_name"`
}

type QueryResponse struct {
	Result  ResultCode    `json:"result"`
	Metrics []MetricsData `json:"metrics"`
	Success bool          `json:"success"`
}
