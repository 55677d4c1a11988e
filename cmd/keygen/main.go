// Command keygen creates the RS256 key pair the server signs tokens with.
// It writes private.pem and public.pem into the target directory and
// refuses to overwrite existing keys.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ezidp/ezidp/internal/cryptox"
	"github.com/ezidp/ezidp/internal/filex"
)

func main() {
	dirFlag := flag.String("o", "keys", "output directory for the PEM files")
	bits := flag.Int("b", 2048, "RSA key size in bits")
	flag.Parse()

	dir, err := filex.EnsureDir(*dirFlag, 0o700)
	if err != nil {
		log.Fatalf("%v", err)
	}

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("%s already exists; remove it first to generate a new pair", path)
		}
	}

	key, err := cryptox.GenerateKeyPair(*bits)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := os.WriteFile(privPath, cryptox.EncodePrivateKeyPEM(key), 0o600); err != nil {
		log.Fatalf("writing %s: %v", privPath, err)
	}
	pubPEM, err := cryptox.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("writing %s: %v", pubPath, err)
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
}
