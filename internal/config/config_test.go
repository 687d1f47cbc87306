package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/treedb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "treedb.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		p := writeConfig(t, `
dir: data
auto_backup: true
crypted: true
encryption_method: keyed
encryption_key: s3cret
git:
  dir: archive
`)
		c, err := Load(p, false)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		o := c.Options()
		if o.Dir != "data" || !o.AutoBackup || !o.Crypted || o.EncryptionMethod != "keyed" || o.EncryptionKey != "s3cret" {
			t.Errorf("Options() = %+v", o)
		}
		if o.Filename != treedb.DefaultFilename {
			t.Errorf("Filename = %q, default not kept", o.Filename)
		}
		if c.Git == nil || c.Git.Dir != "archive" {
			t.Errorf("Git = %+v", c.Git)
		}
	})

	t.Run("missing", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "nope.yaml")
		c, err := Load(p, true)
		if err != nil || c.Dir != treedb.DefaultDir {
			t.Errorf("Load(optional) = %+v, %v", c, err)
		}
		if _, err := Load(p, false); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load(required) error = %v", err)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "dir: [unclosed"), false); !errors.Is(err, treedb.ErrConfiguration) {
			t.Errorf("Load() error = %v, want ErrConfiguration", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"keyed without key", func(c *Config) { c.Crypted, c.EncryptionMethod = true, "keyed" }, "EncryptionKey"},
		{"fernet without key", func(c *Config) { c.Crypted, c.EncryptionMethod = true, "fernet" }, "EncryptionKey"},
		{"unknown method", func(c *Config) { c.EncryptionMethod = "rot13" }, "EncryptionMethod"},
		{"filename with slash", func(c *Config) { c.Filename = "a/b.json" }, "Filename"},
		{"same backup", func(c *Config) { c.BackupFilename = c.Filename }, "BackupFilename"},
		{"telegram without chat", func(c *Config) { c.Telegram = &Telegram{Token: "t"} }, "ChatID"},
		{"git bad email", func(c *Config) { c.Git = &Git{Dir: "x", Email: "nope"} }, "Email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.edit(c)
			err := c.Validate()
			if !errors.Is(err, treedb.ErrConfiguration) {
				t.Fatalf("Validate() error = %v, want ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() error %q does not name %s", err, tt.field)
			}
		})
	}

	t.Run("key only needed when crypted", func(t *testing.T) {
		c := Default()
		c.EncryptionMethod = "keyed"
		if err := c.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TREEDB_DIR":            "/tmp/x",
		"TREEDB_CRYPTED":        "true",
		"TREEDB_ENCRYPTION_KEY": "k",
		"TREEDB_TELEGRAM_TOKEN": "tok",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default()
	if err := c.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if c.Dir != "/tmp/x" || !c.Crypted || c.EncryptionKey != "k" || c.Telegram == nil || c.Telegram.Token != "tok" {
		t.Errorf("ApplyEnv() = %+v", c)
	}
	if c.Filename != treedb.DefaultFilename {
		t.Errorf("unset variable changed Filename to %q", c.Filename)
	}

	env["TREEDB_LOG"] = "maybe"
	if err := c.ApplyEnv(lookup); !errors.Is(err, treedb.ErrConfiguration) {
		t.Errorf("ApplyEnv() error = %v, want ErrConfiguration", err)
	}
}

func TestTransports(t *testing.T) {
	c := Default()
	c.Telegram = &Telegram{Token: "t", ChatID: "1"}
	c.Git = &Git{Dir: filepath.Join(t.TempDir(), "archive")}
	got, err := c.Transports()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tr := range got {
		names = append(names, tr.Name())
	}
	if strings.Join(names, ",") != "telegram,git" {
		t.Errorf("Transports() = %v", names)
	}
}

func TestSchema(t *testing.T) {
	b, err := json.Marshal(Schema())
	if err != nil {
		t.Fatal(err)
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"dir", "encryption_method", "auto_backup", "telegram", "git"} {
		if _, ok := s.Properties[k]; !ok {
			t.Errorf("schema lacks property %q: %s", k, b)
		}
	}
}
