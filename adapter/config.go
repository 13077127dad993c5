package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Dialect is the closed set of supported database servers.
type Dialect string

const (
	MySQL      Dialect = "mysql"
	PostgreSQL Dialect = "pgsql"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "pgsql", "postgres", "postgresql":
		return PostgreSQL, nil
	default:
		return "", &ValidationError{Field: "driver", Value: s, Reason: fmt.Sprintf("Unsupported driver: %s", s)}
	}
}

const DefaultBatchSize = 1000

// Config describes one database endpoint.
type Config struct {
	Name           string
	Driver         Dialect
	Host           string
	Port           int
	Database       string
	Schema         string // PostgreSQL only
	Username       string
	Password       string
	SSLMode        string // PostgreSQL only
	BatchSize      int
	CredentialsDir string // where dump/run credentials files are written
}

var (
	hostPattern       = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	namePattern       = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// WithDefaults fills in the port, schema, SSL mode and batch size when unset.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		switch c.Driver {
		case MySQL:
			c.Port = 3306
		case PostgreSQL:
			c.Port = 5432
		}
	}
	if c.Driver == PostgreSQL {
		if c.Schema == "" {
			c.Schema = "public"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Validate checks required fields and whitelists every value that ends up
// inside SQL text or a shell command.
func (c Config) Validate() error {
	var missing []string
	if c.Driver == "" {
		missing = append(missing, "driver")
	}
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return &ValidationError{
			Field:  strings.Join(missing, ", "),
			Reason: fmt.Sprintf("Missing required configuration: %s", strings.Join(missing, ", ")),
		}
	}

	if c.Driver != MySQL && c.Driver != PostgreSQL {
		return &ValidationError{Field: "driver", Value: string(c.Driver), Reason: fmt.Sprintf("Unsupported driver: %s", c.Driver)}
	}
	if !hostPattern.MatchString(c.Host) {
		return invalidValue("host", c.Host, "letters, digits, dots, underscores and hyphens")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ValidationError{Field: "port", Value: fmt.Sprint(c.Port), Reason: fmt.Sprintf("Invalid value for port: %d.", c.Port)}
	}
	if err := ValidateIdentifier("database", c.Database); err != nil {
		return err
	}
	if err := ValidateIdentifier("username", c.Username); err != nil {
		return err
	}
	if c.Driver == PostgreSQL {
		if err := ValidateIdentifier("schema", c.Schema); err != nil {
			return err
		}
	}
	if c.Name != "" && !namePattern.MatchString(c.Name) {
		return invalidValue("name", c.Name, "letters, digits, dots, underscores and hyphens")
	}
	if c.BatchSize <= 0 {
		return &ValidationError{Field: "batch_size", Value: fmt.Sprint(c.BatchSize), Reason: fmt.Sprintf("Invalid value for batch_size: %d. Must be positive.", c.BatchSize)}
	}
	return nil
}

// ValidateIdentifier rejects anything but letters, digits and underscores.
// Table and field names pass through here before reaching SQL text.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("Missing required configuration: %s", field)}
	}
	if !identifierPattern.MatchString(value) {
		return invalidValue(field, value, "letters, digits and underscores")
	}
	return nil
}

// ParseOrder parses a column order name, reporting bad input as a
// ValidationError.
func ParseOrder(s string) (schema.Order, error) {
	order, err := schema.ParseOrder(s)
	if err != nil {
		return "", &ValidationError{Field: "column-order", Value: s, Reason: err.Error()}
	}
	return order, nil
}

func invalidValue(field, value, allowed string) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf("Invalid value for %s: '%s'. Only %s are allowed.", field, value, allowed),
	}
}
