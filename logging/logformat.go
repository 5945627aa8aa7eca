package logging

type diagnosticLogEntry struct {
	OperationName string                     `json:"operationName"`
	Category      string                     `json:"category"`
	Properties    diagnosticLogEntryProperty `json:"properties"`
}

type diagnosticLogEntryProperty struct {
	SignatureID    string `json:"signatureId,omitempty"`
	CommonStringID string `json:"commonStringId,omitempty"`
	Pattern        string `json:"pattern"`
	Message        string `json:"message"`
}
