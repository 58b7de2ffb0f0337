// Package tlskey generates the key pairs declared as PrivateKey nodes.
package tlskey

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/log"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/graph"
)

const (
	// DefaultRSABits is used when a PrivateKey does not set rsaBits
	DefaultRSABits = 4096

	// MinRSABits is the smallest accepted RSA key size
	MinRSABits = 2048
)

// Generator creates key pairs. A key is generated every time Apply is
// called; reuse across runs comes from the recorded state.
type Generator struct {
	random io.Reader
}

// NewGenerator creates a key pair generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// Apply generates the key pair described by obj and returns it with the key
// material in its status
func (g *Generator) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var key infrav1alpha1.PrivateKey
	if err := infrav1alpha1.FromUnstructured(obj, &key); err != nil {
		return nil, err
	}

	bits := key.Spec.RSABits
	if bits == 0 {
		bits = DefaultRSABits
	}
	switch {
	case key.Spec.Algorithm != infrav1alpha1.KeyAlgorithmRSA:
		return nil, fmt.Errorf("unsupported key algorithm %q", key.Spec.Algorithm)
	case bits < MinRSABits:
		return nil, fmt.Errorf("rsaBits must be at least %d, got %d", MinRSABits, bits)
	}

	log.FromContext(ctx).V(1).Info("generating key pair", "algorithm", key.Spec.Algorithm, "bits", bits)

	status, err := g.generateRSA(bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair %s: %w", obj.GetName(), err)
	}
	return infrav1alpha1.SetStatus(obj, status)
}

func (g *Generator) generateRSA(bits int) (*infrav1alpha1.PrivateKeyStatus, error) {
	privateKey, err := rsa.GenerateKey(g.random, bits)
	if err != nil {
		return nil, err
	}
	if err := privateKey.Validate(); err != nil {
		return nil, err
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	return &infrav1alpha1.PrivateKeyStatus{
		PublicKeyOpenSSH: strings.TrimSpace(string(ssh.MarshalAuthorizedKey(publicKey))),
		PrivateKeyPEM:    string(privateKeyPEM),
	}, nil
}
