// Package keygen creates throwaway SSH key pairs for exercising the
// relay against in-process servers, so tests never depend on key files
// checked into the tree.
package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// KeyPair holds an ed25519 key pair in the formats the relay consumes.
type KeyPair struct {
	// PrivateKey is PEM in OpenSSH format, as ParseCredential expects.
	PrivateKey []byte
	// PublicKey is in authorized_keys format, for a server's allow list.
	PublicKey []byte
}

// Generate creates a fresh ed25519 key pair.
func Generate() (*KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(private, "")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		return nil, fmt.Errorf("failed to derive SSH public key: %w", err)
	}

	return &KeyPair{
		PrivateKey: pem.EncodeToMemory(block),
		PublicKey:  ssh.MarshalAuthorizedKey(sshPublic),
	}, nil
}

// Signer parses the private key into a signer, typically for a test
// server's host key.
func (kp *KeyPair) Signer() (ssh.Signer, error) {
	return ssh.ParsePrivateKey(kp.PrivateKey)
}
