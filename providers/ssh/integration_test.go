//go:build integration

package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/tunneltest"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	sshTestImage       = "lscr.io/linuxserver/openssh-server:latest"
	sshTestContainer   = "tunnel-ssh-test-container"
	sshTestPortDefault = 2224
)

func TestIntegration(t *testing.T) {
	dialer, target, cleanup := setupSSHEnvironment(t)
	t.Cleanup(cleanup)

	t.Logf("Connecting to %s...", target)

	tunneltest.Verify(t, dialer, target,
		tunnel.WithPollInterval(20*time.Millisecond),
		tunnel.WithInterruptGrace(2*time.Second),
	)
}

// setupSSHEnvironment uses SSH_TEST_HOST when set and otherwise starts an
// OpenSSH container with a throwaway key.
func setupSSHEnvironment(t *testing.T) (*Dialer, tunnel.Target, func()) {
	t.Helper()

	if host := os.Getenv("SSH_TEST_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("SSH_TEST_PORT"))

		dialer, err := NewDialer(
			WithKeyPath(os.Getenv("SSH_TEST_KEY_PATH")),
			WithInsecureSkipVerify(true),
			WithTimeouts(5*time.Second, 5*time.Second, 5*time.Second),
		)
		require.NoError(t, err)

		return dialer, tunnel.Target{
			Host:     host,
			Port:     port,
			User:     os.Getenv("SSH_TEST_USER"),
			Password: os.Getenv("SSH_TEST_PASS"),
		}, func() {}
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("SSH_TEST_HOST not set and docker not found in PATH")
	}

	privKey, pubKey, err := generateSSHKey()
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "id_rsa_test")
	require.NoError(t, os.WriteFile(keyPath, privKey, 0o600))

	const user = "testuser"

	_ = exec.Command("docker", "rm", "-f", sshTestContainer).Run()

	out, err := exec.Command("docker", "run", "-d",
		"--name", sshTestContainer,
		"-p", fmt.Sprintf("%d:2222", sshTestPortDefault),
		"-e", "PUID=1000",
		"-e", "PGID=1000",
		"-e", "USER_NAME="+user,
		"-e", "PUBLIC_KEY="+string(pubKey),
		"-e", "PASSWORD_ACCESS=false",
		sshTestImage,
	).CombinedOutput()
	require.NoError(t, err, "Failed to start docker container: %s", out)

	cleanup := func() {
		if os.Getenv("KEEP_SSH_CONTAINER") == "" {
			_ = exec.Command("docker", "rm", "-f", sshTestContainer).Run()
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", sshTestPortDefault)
	if !waitForPort(addr, 30*time.Second) {
		logs, _ := exec.Command("docker", "logs", sshTestContainer).CombinedOutput()
		cleanup()
		t.Fatalf("SSH server never became ready at %s. Logs:\n%s", addr, logs)
	}

	// sshd accepts TCP before it is ready for key exchange.
	time.Sleep(3 * time.Second)

	dialer, err := NewDialer(
		WithKeyPath(keyPath),
		WithInsecureSkipVerify(true),
		WithTimeouts(5*time.Second, 5*time.Second, 5*time.Second),
	)
	require.NoError(t, err)

	return dialer, tunnel.Target{Host: "127.0.0.1", Port: sshTestPortDefault, User: user}, cleanup
}

func generateSSHKey() ([]byte, []byte, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	privBlock := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}

	pub, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	return pem.EncodeToMemory(privBlock), ssh.MarshalAuthorizedKey(pub), nil
}

func waitForPort(addr string, timeout time.Duration) bool {
	end := time.Now().Add(timeout)
	for time.Now().Before(end) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			_ = conn.Close()

			return true
		}

		time.Sleep(500 * time.Millisecond)
	}

	return false
}
