package smtptest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/flashmob/go-guerrilla/tests/testcert"
)

// GenerateTLSFiles writes a TLS key and certificate for 127.0.0.1 to a
// temporary test directory that is removed after the test runs. It returns
// the file paths of the key and certificate. The certificate is self-signed,
// so clients must skip verification.
func GenerateTLSFiles(t *testing.T) (keyPath string, certPath string, err error) {
	t.Helper()
	host := "127.0.0.1"
	d := t.TempDir() + string(filepath.Separator)
	err = testcert.GenerateCert(
		host,
		"",                         // defaults to now
		time.Duration(1)*time.Hour, // the test suite won't run for this long
		true,                       // is a CA cert
		2048,                       // usually seen in online tutorials
		"",                         // using the default ecdsa curve,
		d,
	)

	if err != nil {
		return
	}

	// These path names are hardcoded into testcert.GenerateCert
	keyPath = d + host + ".key.pem"
	certPath = d + host + ".cert.pem"

	return
}

// StartServer generates TLS fixtures, starts an InProcessServer accepting
// username/password, and stops it when the test ends.
func StartServer(t *testing.T, username, password string) *InProcessServer {
	t.Helper()
	k, c, err := GenerateTLSFiles(t)
	if err != nil {
		t.Fatalf("can't generate TLS files: %v", err)
	}

	srv, err := NewInProcessServer(k, c, username, password)
	if err != nil {
		t.Fatalf("can't create the test SMTP server: %v", err)
	}

	go srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
