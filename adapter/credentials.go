package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// credentialsDir falls back to a fixed directory under the system temp dir
// so repeated runs reuse the same files.
func (c Config) credentialsDir() string {
	if c.CredentialsDir != "" {
		return c.CredentialsDir
	}
	return filepath.Join(os.TempDir(), "mudrockdbtool")
}

func (c Config) credentialsName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Database
}

// CredentialsPath is where the client tools' credentials file for c lives.
func (c Config) CredentialsPath() string {
	ext := ".cnf"
	if c.Driver == PostgreSQL {
		ext = ".pgpass"
	}
	return filepath.Join(c.credentialsDir(), c.credentialsName()+ext)
}

func optionFileValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func pgpassField(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`)
	return r.Replace(s)
}

// credentialsFile renders the client credentials for c: an option file with
// a [client] group for MySQL, a single .pgpass line for PostgreSQL.
func credentialsFile(c Config) string {
	if c.Driver == PostgreSQL {
		return strings.Join([]string{
			pgpassField(c.Host),
			strconv.Itoa(c.Port),
			pgpassField(c.Database),
			pgpassField(c.Username),
			pgpassField(c.Password),
		}, ":") + "\n"
	}
	var sb strings.Builder
	sb.WriteString("[client]\n")
	fmt.Fprintf(&sb, "host=%s\n", c.Host)
	fmt.Fprintf(&sb, "port=%d\n", c.Port)
	fmt.Fprintf(&sb, "user=%s\n", c.Username)
	fmt.Fprintf(&sb, "password=%s\n", optionFileValue(c.Password))
	return sb.String()
}

// WriteCredentials writes the credentials file for c with owner-only
// permissions and returns its path.
func WriteCredentials(c Config) (string, error) {
	path := c.CredentialsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(credentialsFile(c)), 0o600); err != nil {
		return "", fmt.Errorf("write credentials file: %w", err)
	}
	// WriteFile keeps the mode of a file that already existed.
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("chmod credentials file: %w", err)
	}
	return path, nil
}

func mysqlDumpCommand(c Config, credentials string, mariadb bool, opts DumpOptions) string {
	tool := "mysqldump"
	if mariadb {
		tool = "mariadb-dump"
	}
	args := []string{tool, "--defaults-file=" + credentials}
	if opts.Compact {
		args = append(args, "--compact")
	}
	if opts.SchemaOnly {
		args = append(args, "-d")
	}
	args = append(args, c.Database)
	if opts.Table != "" {
		args = append(args, opts.Table)
	}
	return shellescape.QuoteCommand(args)
}

func mysqlRunCommand(c Config, credentials string, mariadb bool, script string) string {
	tool := "mysql"
	if mariadb {
		tool = "mariadb"
	}
	return shellescape.QuoteCommand([]string{tool, "--defaults-file=" + credentials, c.Database}) +
		" < " + shellescape.Quote(script)
}

func pgConnArgs(c Config) []string {
	return []string{"-h", c.Host, "-p", strconv.Itoa(c.Port), "-U", c.Username, "-d", c.Database, "-w"}
}

func pgDumpCommand(c Config, credentials string, opts DumpOptions) string {
	args := append([]string{"pg_dump"}, pgConnArgs(c)...)
	args = append(args, "-n", c.Schema)
	if opts.SchemaOnly {
		args = append(args, "-s")
	}
	if opts.Table != "" {
		args = append(args, "-t", c.Schema+"."+opts.Table)
	}
	return "PGPASSFILE=" + shellescape.Quote(credentials) + " " + shellescape.QuoteCommand(args)
}

func pgRunCommand(c Config, credentials, script string) string {
	args := append([]string{"psql"}, pgConnArgs(c)...)
	args = append(args, "-f", script)
	return "PGPASSFILE=" + shellescape.Quote(credentials) + " " + shellescape.QuoteCommand(args)
}
