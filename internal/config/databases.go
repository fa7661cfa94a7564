package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// DatabasesFile is the YAML layout of DATABASES_FILE:
//
//	default: shop
//	databases:
//	  - id: shop
//	    type: postgres
//	    host: localhost
//	    port: 5432
//	    database: shop
//	    username: app
//	    password: enc:9f1c...
type DatabasesFile struct {
	Default   string                  `yaml:"default"`
	Databases []domain.DatabaseConfig `yaml:"databases"`
}

// LoadDatabases reads the databases file at path. ${VAR} references are
// expanded from the environment before parsing. Sealed passwords are
// decrypted with sealer; a sealed password without a sealer is an error.
func LoadDatabases(path string, sealer *crypto.Sealer) (*DatabasesFile, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read databases file: %w", err)
	}
	var file DatabasesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("parse databases file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Databases))
	for i := range file.Databases {
		db := &file.Databases[i]
		if err := db.Validate(); err != nil {
			return nil, fmt.Errorf("databases file %s: %w", path, err)
		}
		if seen[db.ID] {
			return nil, fmt.Errorf("databases file %s: duplicate id %q", path, db.ID)
		}
		seen[db.ID] = true

		if crypto.IsSealed(db.Password) {
			if sealer == nil {
				return nil, fmt.Errorf("database %q has a sealed password but DB_ENCRYPTION_KEY is not set", db.ID)
			}
			plain, err := sealer.Open(db.Password)
			if err != nil {
				return nil, fmt.Errorf("database %q: %w", db.ID, err)
			}
			db.Password = plain
		}
	}
	if file.Default != "" && !seen[file.Default] {
		return nil, fmt.Errorf("databases file %s: default %q is not listed", path, file.Default)
	}
	return &file, nil
}
