// Package logentries is the persistent store of named log configurations
// and the credentials to reach their hosts.
package logentries

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"opsdeck/internal/faults"
	"opsdeck/internal/sshpool"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create validates and stores a new entry. Host positions are assigned
// from the given order when unset.
func (r *Repository) Create(entry *LogEntry) error {
	if err := validate(entry); err != nil {
		return err
	}

	for i := range entry.Hosts {
		entry.Hosts[i].Position = i
	}

	err := r.db.Create(entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			return faults.Errorf(faults.Validation, "log entry %q already exists", entry.Name)
		}
		return faults.Wrap(faults.Internal, err, "create log entry")
	}
	return nil
}

// Save replaces an existing entry's fields and hosts.
func (r *Repository) Save(entry *LogEntry) error {
	if err := validate(entry); err != nil {
		return err
	}

	existing, err := r.GetByName(entry.Name)
	if err != nil {
		return err
	}

	for i := range entry.Hosts {
		entry.Hosts[i].Position = i
		entry.Hosts[i].LogEntryID = existing.ID
	}
	entry.ID = existing.ID

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("log_entry_id = ?", existing.ID).Delete(&HostConfig{}).Error; err != nil {
			return err
		}
		return tx.Save(entry).Error
	})
}

// GetAll returns every entry with hosts in position order.
func (r *Repository) GetAll() ([]LogEntry, error) {
	var entries []LogEntry
	err := r.db.Preload("Hosts").Order("name").Find(&entries).Error
	if err != nil {
		return nil, faults.Wrap(faults.Internal, err, "list log entries")
	}
	for i := range entries {
		sortHosts(entries[i].Hosts)
	}
	return entries, nil
}

// GetByName returns one entry or a not-found fault.
func (r *Repository) GetByName(name string) (*LogEntry, error) {
	entry := &LogEntry{}
	err := r.db.Preload("Hosts").Where("name = ?", name).First(entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, faults.Errorf(faults.NotFound, "log entry %q not found", name)
	}
	if err != nil {
		return nil, faults.Wrap(faults.Internal, err, "load log entry")
	}
	sortHosts(entry.Hosts)
	return entry, nil
}

// Delete removes an entry and its hosts.
func (r *Repository) Delete(name string) error {
	entry, err := r.GetByName(name)
	if err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("log_entry_id = ?", entry.ID).Delete(&HostConfig{}).Error; err != nil {
			return err
		}
		return tx.Delete(entry).Error
	})
}

// Lookup resolves a logical log name and host index to an endpoint plus
// the effective log path on that host.
func (r *Repository) Lookup(name string, hostIndex int) (sshpool.Endpoint, string, error) {
	entry, err := r.GetByName(name)
	if err != nil {
		return sshpool.Endpoint{}, "", err
	}

	if hostIndex < 0 || hostIndex >= len(entry.Hosts) {
		return sshpool.Endpoint{}, "", faults.Errorf(faults.NotFound,
			"log entry %q has no host %d", name, hostIndex)
	}

	host := entry.Hosts[hostIndex]
	path := host.Path
	if path == "" {
		path = entry.Path
	}
	return host.Endpoint(), path, nil
}

func sortHosts(hosts []HostConfig) {
	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Position < hosts[j].Position
	})
}

func validate(entry *LogEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return faults.New(faults.Validation, "log entry name must not be empty")
	}
	if strings.TrimSpace(entry.Path) == "" && len(entry.Hosts) == 0 {
		return faults.Errorf(faults.Validation, "log entry %q needs a path or hosts", entry.Name)
	}
	for i, h := range entry.Hosts {
		if h.Host == "" || h.Username == "" {
			return faults.Errorf(faults.Validation,
				"host %d of %q needs host and username", i, entry.Name)
		}
		if h.Port == 0 {
			return faults.Errorf(faults.Validation,
				"host %d of %q needs a port", i, entry.Name)
		}
	}
	return nil
}

// ParseTarget parses a "username@hostname[:port]" identifier into an
// endpoint without credentials. Port defaults to 22.
func ParseTarget(target string) (sshpool.Endpoint, error) {
	endpoint := sshpool.Endpoint{Port: 22}

	hostPart := target
	if i := strings.LastIndex(target, ":"); i >= 0 {
		portStr := target[i+1:]
		if portStr == "" {
			return sshpool.Endpoint{}, faults.Errorf(faults.Validation, "invalid ssh target: %s", target)
		}
		port, err := strconv.ParseUint(portStr, 10, 32)
		if err != nil || port > 65535 {
			return sshpool.Endpoint{}, faults.Errorf(faults.Validation, "invalid port in ssh target: %s", portStr)
		}
		endpoint.Port = uint(port)
		hostPart = target[:i]
	}

	at := strings.Index(hostPart, "@")
	if at <= 0 || at == len(hostPart)-1 {
		return sshpool.Endpoint{}, faults.Errorf(faults.Validation,
			"ssh target must look like username@hostname[:port], got %q", target)
	}

	endpoint.Username = hostPart[:at]
	endpoint.Host = hostPart[at+1:]
	return endpoint, nil
}

// TargetString renders an endpoint back into the target form, for display.
func TargetString(endpoint sshpool.Endpoint) string {
	return fmt.Sprintf("%s@%s:%d", endpoint.Username, endpoint.Host, endpoint.Port)
}
