package logentries

import (
	"time"

	"opsdeck/internal/logsearch"
	"opsdeck/internal/sshpool"
)

// LogEntry is one named log configuration: a default path plus the hosts
// it lives on. Per-host paths override the entry default.
type LogEntry struct {
	ID          uint   `gorm:"primarykey" json:"-"`
	Name        string `gorm:"uniqueIndex" json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	// Group labels related entries; "group" is an SQL keyword.
	Group string `gorm:"column:log_group" json:"group,omitempty"`

	Hosts []HostConfig `gorm:"foreignKey:LogEntryID;constraint:OnDelete:CASCADE" json:"hosts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HostConfig is one SSH target of a log entry. Position preserves the
// configured host order; search results are keyed by it.
type HostConfig struct {
	ID         uint `gorm:"primarykey" json:"-"`
	LogEntryID uint `gorm:"index" json:"-"`
	Position   int  `json:"position"`

	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Username string `json:"username"`
	// Password is stored as configured; redaction is the API layer's job.
	Password       string `json:"password,omitempty"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty"`
	Passphrase     string `json:"passphrase,omitempty"`

	// Path overrides the entry-wide default on this host.
	Path string `json:"path,omitempty"`
}

// Endpoint converts the stored credentials into a pool endpoint.
func (h HostConfig) Endpoint() sshpool.Endpoint {
	return sshpool.Endpoint{
		Host:           h.Host,
		Port:           h.Port,
		Username:       h.Username,
		Password:       h.Password,
		PrivateKeyPath: h.PrivateKeyPath,
		Passphrase:     h.Passphrase,
	}
}

// SearchEntry converts the stored configuration into the orchestrator's
// input shape, hosts in position order.
func (e *LogEntry) SearchEntry() logsearch.LogEntry {
	entry := logsearch.LogEntry{
		Name: e.Name,
		Path: e.Path,
	}
	for _, h := range e.Hosts {
		entry.Hosts = append(entry.Hosts, logsearch.HostTarget{
			Endpoint: h.Endpoint(),
			Path:     h.Path,
		})
	}
	return entry
}
