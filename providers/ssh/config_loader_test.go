package ssh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSH_NewFromSSHConfig(t *testing.T) {
	t.Parallel()

	// Create a temporary ssh config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ssh_config")

	configContent := `
Host myalias
    HostName 1.2.3.4
    User testuser
    Port 2222
    IdentityFile ~/.ssh/id_ed25519
    ConnectTimeout 4
    StrictHostKeyChecking no
`
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.NoError(t, err)

	t.Run("custom path", func(t *testing.T) {
		t.Parallel()

		cfg, err := NewFromSSHConfig("myalias", configPath)
		require.NoError(t, err)

		assert.Equal(t, "1.2.3.4", cfg.Host)
		assert.Equal(t, "testuser", cfg.User)
		assert.Equal(t, 2222, cfg.Port)
		assert.True(t, cfg.InsecureSkipVerify)
		assert.Equal(t, 4*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 4*time.Second, cfg.BannerTimeout)
		assert.Equal(t, DefaultAuthTimeout, cfg.AuthTimeout)
		assert.True(t, filepath.IsAbs(cfg.PrivateKeyPath))
		assert.Contains(t, cfg.PrivateKeyPath, "id_ed25519")
	})

	t.Run("non-existent path", func(t *testing.T) {
		t.Parallel()

		_, err := NewFromSSHConfig("myalias", filepath.Join(tmpDir, "non_existent"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open ssh config")
	})
}

func TestSSH_NewFromSSHConfigReader_UnknownAlias(t *testing.T) {
	t.Parallel()

	cfg, err := NewFromSSHConfigReader("plainhost", strings.NewReader("Host other\n    Port 2022\n"))
	require.NoError(t, err)

	assert.Equal(t, "plainhost", cfg.Host)
	assert.Equal(t, 22, cfg.Port)
	assert.False(t, cfg.InsecureSkipVerify)
}
