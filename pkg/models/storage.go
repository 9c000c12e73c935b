package models

import (
	"net"
	"strconv"
	"strings"
)

// StorageKind discriminates the StorageConfiguration variants
type StorageKind string

const (
	KindSMB        StorageKind = "smb"
	KindSFTP       StorageKind = "sftp"
	KindSharePoint StorageKind = "sharepoint"
	KindLocal      StorageKind = "local"
)

// Default ports
const (
	DefaultSMBPort  = 445
	DefaultSFTPPort = 22
)

// ParseStorageKind parses a kind name
func ParseStorageKind(s string) (StorageKind, error) {
	switch StorageKind(strings.ToLower(s)) {
	case KindSMB:
		return KindSMB, nil
	case KindSFTP:
		return KindSFTP, nil
	case KindSharePoint:
		return KindSharePoint, nil
	case KindLocal:
		return KindLocal, nil
	}
	return "", &ValidationError{Field: "kind", Message: "unknown storage kind: " + s}
}

// StorageConfiguration is the closed set of backend connection settings.
// Secrets are never part of a configuration.
type StorageConfiguration interface {
	StorageID() string
	DisplayName() string
	Kind() StorageKind
	Validate() error

	withID(id string) StorageConfiguration
}

// WithID returns a copy of cfg carrying id
func WithID(cfg StorageConfiguration, id string) StorageConfiguration {
	return cfg.withID(id)
}

// RequiresCredential reports whether a configuration of this kind needs a secret
func RequiresCredential(cfg StorageConfiguration) bool {
	return cfg.Kind() != KindLocal
}

// SMBConfig holds SMB/CIFS connection settings
type SMBConfig struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Domain   string
	Username string
}

func (c SMBConfig) StorageID() string   { return c.ID }
func (c SMBConfig) DisplayName() string { return c.Name }
func (c SMBConfig) Kind() StorageKind   { return KindSMB }

func (c SMBConfig) withID(id string) StorageConfiguration {
	c.ID = id
	return c
}

// Validate checks the required SMB fields
func (c SMBConfig) Validate() error {
	if err := validateCommon(c.Name, c.Host); err != nil {
		return err
	}
	if c.Username == "" {
		return &ValidationError{Field: "username", Message: "username is required"}
	}
	return validatePort(c.Port)
}

// Address returns host:port, defaulting to 445
func (c SMBConfig) Address() string {
	return hostPort(c.Host, c.Port, DefaultSMBPort)
}

// SFTPConfig holds SFTP connection settings
type SFTPConfig struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Username string
	StartDir string
}

func (c SFTPConfig) StorageID() string   { return c.ID }
func (c SFTPConfig) DisplayName() string { return c.Name }
func (c SFTPConfig) Kind() StorageKind   { return KindSFTP }

func (c SFTPConfig) withID(id string) StorageConfiguration {
	c.ID = id
	return c
}

// Validate checks the required SFTP fields
func (c SFTPConfig) Validate() error {
	if err := validateCommon(c.Name, c.Host); err != nil {
		return err
	}
	if c.Username == "" {
		return &ValidationError{Field: "username", Message: "username is required"}
	}
	return validatePort(c.Port)
}

// Address returns host:port, defaulting to 22
func (c SFTPConfig) Address() string {
	return hostPort(c.Host, c.Port, DefaultSFTPPort)
}

// SharePointConfig holds Microsoft Graph settings. ObjectID is the site id.
type SharePointConfig struct {
	ID       string
	Name     string
	ObjectID string
	TenantID string
	ClientID string
	DriveID  string
}

func (c SharePointConfig) StorageID() string   { return c.ID }
func (c SharePointConfig) DisplayName() string { return c.Name }
func (c SharePointConfig) Kind() StorageKind   { return KindSharePoint }

func (c SharePointConfig) withID(id string) StorageConfiguration {
	c.ID = id
	return c
}

// Validate checks the required SharePoint fields
func (c SharePointConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if c.ObjectID == "" {
		return &ValidationError{Field: "object_id", Message: "object id is required"}
	}
	if c.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "tenant id is required"}
	}
	if c.ClientID == "" {
		return &ValidationError{Field: "client_id", Message: "client id is required"}
	}
	return nil
}

// LocalConfig points at a directory on this machine
type LocalConfig struct {
	ID       string
	Name     string
	RootPath string
}

func (c LocalConfig) StorageID() string   { return c.ID }
func (c LocalConfig) DisplayName() string { return c.Name }
func (c LocalConfig) Kind() StorageKind   { return KindLocal }

func (c LocalConfig) withID(id string) StorageConfiguration {
	c.ID = id
	return c
}

// Validate checks the required local fields
func (c LocalConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if c.RootPath == "" {
		return &ValidationError{Field: "root_path", Message: "root path is required"}
	}
	return nil
}

func validateCommon(name, host string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(host) == "" {
		return &ValidationError{Field: "host", Message: "host is required"}
	}
	return nil
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return &ValidationError{Field: "port", Message: "port must be between 0 and 65535"}
	}
	return nil
}

func hostPort(host string, port, def int) string {
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
