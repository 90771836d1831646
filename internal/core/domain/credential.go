package domain

import "time"

// CredentialStatus is a read-only snapshot of one API key in the pool.
// The raw secret never leaves the pool; KeyHint carries a masked form.
type CredentialStatus struct {
	Index        int        `json:"index"`
	KeyHint      string     `json:"keyHint"`
	IsActive     bool       `json:"isActive"`
	FailureCount int        `json:"failureCount"`
	LastError    string     `json:"lastError,omitempty"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
	CallsToday   int64      `json:"callsToday"`
}

// KeyHealth summarizes the pool for monitors and operators.
type KeyHealth struct {
	CurrentKeyIndex int                `json:"currentKeyIndex"`
	TotalKeys       int                `json:"totalKeys"`
	AllKeysFailed   bool               `json:"allKeysFailed"`
	Threshold       int                `json:"failureThreshold"`
	ActiveKeyStatus CredentialStatus   `json:"activeKeyStatus"`
	BackupKeys      []CredentialStatus `json:"backupKeys"`
}

// MaskKey returns a short, non-secret hint for an API key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-3:]
}
