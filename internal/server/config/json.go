package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ezidp/ezidp/internal/flagx"
	"github.com/ezidp/ezidp/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr        string         `json:"endpoint_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	PrivateKeyFile      string         `json:"private_key_file"`
	PublicKeyFile       string         `json:"public_key_file"`
	Audience            string         `json:"audience"`
	AccessTokenValidity timex.Duration `json:"access_token_validity"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.PrivateKeyFile = c.PrivateKeyFile
	config.PublicKeyFile = c.PublicKeyFile
	config.Audience = c.Audience
	config.AccessTokenValidity = time.Duration(c.AccessTokenValidity.Duration)
}
