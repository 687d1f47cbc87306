// Package config loads the command line configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/maruel/treedb"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables read by [Config.ApplyEnv].
const EnvPrefix = "TREEDB_"

var validate = validator.New()

// Config is the content of the YAML configuration file.
type Config struct {
	Dir            string `yaml:"dir" json:"dir" jsonschema:"description=Directory holding the database files,default=database"`
	Filename       string `yaml:"filename" json:"filename" validate:"omitempty,excludes=/" jsonschema:"description=Backing file name,default=db.json"`
	BackupFilename string `yaml:"backup_filename" json:"backup_filename" validate:"omitempty,excludes=/,nefield=Filename" jsonschema:"description=Backup file name,default=db_backup.json"`
	Log            bool   `yaml:"log" json:"log" jsonschema:"description=Log load and save operations"`
	AutoBackup     bool   `yaml:"auto_backup" json:"auto_backup" jsonschema:"description=Copy the file to the backup before each save"`
	Crypted        bool   `yaml:"crypted" json:"crypted" jsonschema:"description=Store the tree encoded instead of as plain JSON"`
	// EncryptionKey is usually given through TREEDB_ENCRYPTION_KEY rather
	// than in the file.
	EncryptionMethod string `yaml:"encryption_method" json:"encryption_method" validate:"omitempty,oneof=plain base64 keyed fernet" jsonschema:"enum=plain,enum=base64,enum=keyed,enum=fernet"`
	EncryptionKey    string `yaml:"encryption_key" json:"encryption_key" validate:"required_if=Crypted true EncryptionMethod keyed,required_if=Crypted true EncryptionMethod fernet" jsonschema:"description=Secret for the keyed method"`

	Telegram *Telegram `yaml:"telegram,omitempty" json:"telegram,omitempty"`
	Git      *Git      `yaml:"git,omitempty" json:"git,omitempty"`
}

// Telegram configures the Telegram backup transport.
type Telegram struct {
	Token  string `yaml:"token" json:"token" validate:"required" jsonschema:"description=Bot API token"`
	ChatID string `yaml:"chat_id" json:"chat_id" validate:"required" jsonschema:"description=Destination chat"`
}

// Git configures the git archive backup transport.
type Git struct {
	Dir   string `yaml:"dir" json:"dir" validate:"required" jsonschema:"description=Repository directory"`
	Name  string `yaml:"name" json:"name" jsonschema:"default=treedb"`
	Email string `yaml:"email" json:"email" validate:"omitempty,email" jsonschema:"default=treedb@localhost"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Dir:            treedb.DefaultDir,
		Filename:       treedb.DefaultFilename,
		BackupFilename: treedb.DefaultBackupFilename,
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is given by the user
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", treedb.ErrConfiguration, path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from TREEDB_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DIR":               &c.Dir,
		"FILENAME":          &c.Filename,
		"BACKUP_FILENAME":   &c.BackupFilename,
		"ENCRYPTION_METHOD": &c.EncryptionMethod,
		"ENCRYPTION_KEY":    &c.EncryptionKey,
	}
	for k, p := range str {
		if v, ok := lookup(EnvPrefix + k); ok {
			*p = v
		}
	}
	flags := map[string]*bool{
		"LOG":         &c.Log,
		"AUTO_BACKUP": &c.AutoBackup,
		"CRYPTED":     &c.Crypted,
	}
	for k, p := range flags {
		v, ok := lookup(EnvPrefix + k)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", treedb.ErrConfiguration, EnvPrefix, k, err)
		}
		*p = b
	}
	if token, ok := lookup(EnvPrefix + "TELEGRAM_TOKEN"); ok {
		if c.Telegram == nil {
			c.Telegram = &Telegram{}
		}
		c.Telegram.Token = token
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", treedb.ErrConfiguration, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %w", treedb.ErrConfiguration, err)
	}
	return nil
}

// Options converts the configuration for [treedb.Open].
func (c *Config) Options() treedb.Options {
	return treedb.Options{
		Dir:              c.Dir,
		Filename:         c.Filename,
		BackupFilename:   c.BackupFilename,
		EnableLog:        c.Log,
		AutoBackup:       c.AutoBackup,
		Crypted:          c.Crypted,
		EncryptionMethod: c.EncryptionMethod,
		EncryptionKey:    c.EncryptionKey,
	}
}

// Transports returns the configured backup transports.
func (c *Config) Transports() ([]treedb.Transport, error) {
	var out []treedb.Transport
	if c.Telegram != nil {
		out = append(out, treedb.NewTelegramTransport(c.Telegram.Token, c.Telegram.ChatID))
	}
	if c.Git != nil {
		name, email := c.Git.Name, c.Git.Email
		if name == "" {
			name = "treedb"
		}
		if email == "" {
			email = "treedb@localhost"
		}
		g, err := treedb.NewGitTransport(c.Git.Dir, name, email)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, FieldNameTag: "yaml"}
	return r.Reflect(&Config{})
}
