package config

import (
	"flag"
	"os"
	"time"

	"github.com/ezidp/ezidp/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   path to the RS256 private key PEM file
//	-p string   path to the RS256 public key PEM file
//	-u string   audience stamped into issued tokens
//	-t int      access token validity, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. The validity
// flag is accepted as an integer in seconds and converted to time.Duration.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-p", "-u", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.PrivateKeyFile, "k", config.PrivateKeyFile, "private key PEM file")
	fs.StringVar(&config.PublicKeyFile, "p", config.PublicKeyFile, "public key PEM file")
	fs.StringVar(&config.Audience, "u", config.Audience, "token audience")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidity.Seconds()), "access token validity (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidity = time.Duration(*accessTokenValidity) * time.Second
}
