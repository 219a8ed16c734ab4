package main

import (
	"flag"
	"path/filepath"

	"Go2NetShield/internal/secure"

	"github.com/sirupsen/logrus"
)

func main() {
	dir := flag.String("dir", "keys", "Directory to write the key material into.")
	bits := flag.Int("bits", 2048, "RSA modulus size.")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *bits < 2048 {
		log.Fatalf("Refusing to generate a %d-bit RSA key, use at least 2048", *bits)
	}
	if err := secure.GenerateKeyMaterial(*dir, *bits); err != nil {
		log.Fatalf("Failed to generate key material: %v", err)
	}

	log.WithFields(logrus.Fields{
		"symmetric": filepath.Join(*dir, secure.SymmetricKeyFile),
		"private":   filepath.Join(*dir, secure.PrivateKeyFile),
		"public":    filepath.Join(*dir, secure.PublicKeyFile),
	}).Info("Key material generated. Distribute the private key to sensors and the public key to the analyzer; both need the symmetric key.")
}
