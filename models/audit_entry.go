package models

// AuditEntry represents a single request recorded in the AuditEntries table
type AuditEntry struct {
	ID        int64  `json:"id" db:"id"`
	RawURL    string `json:"rawUrl" db:"raw_url"`
	Method    string `json:"method" db:"method"`
	IPAddress string `json:"ipAddress" db:"ip_address"`
}

// UnknownIPAddress is stored when the remote address cannot be determined
const UnknownIPAddress = "(unknown)"
