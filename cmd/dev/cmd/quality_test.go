package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/biosignals/config"
)

func TestEmulatedTestArgs(t *testing.T) {
	args := emulatedTestArgs("")
	assert.Equal(t, []string{"test", "-race", "-count=1"}, args[:3])
	assert.Contains(t, args, "./bustest/...")
	assert.Contains(t, args, "./device/...")
	assert.NotContains(t, args, "./cmd/...")

	args = emulatedTestArgs("TestRead")
	assert.Equal(t, []string{"test", "-race", "-count=1", "-run", "TestRead"}, args[:5])
}

func TestAcqSteps(t *testing.T) {
	cfg := config.Default()
	steps := acqSteps("board.yaml", cfg, 50, "/tmp/out.csv")
	require.Len(t, steps, 2*len(cfg.Devices)+1)

	assert.Equal(t, "check ecg", steps[0].Name)
	assert.Equal(t, []string{"--config", "board.yaml", "check", "--device", "ecg"}, steps[0].Args)
	assert.Equal(t, []string{"--config", "board.yaml", "init", "--device", "ecg"}, steps[1].Args)

	last := steps[len(steps)-1]
	assert.Equal(t, "stream", last.Name)
	assert.Equal(t, []string{"--config", "board.yaml", "stream", "--no-header", "--limit", "50", "--output", "/tmp/out.csv"}, last.Args)
}

func TestCountRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,ecg,1,2\n2,ecg,3,4\n\n3,ecg,5,6\n"), 0o644))
	n, err := countRows(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = countRows(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestBoardTarget(t *testing.T) {
	goos, goarch, err := boardTarget("nanopi", "", "")
	require.NoError(t, err)
	assert.Equal(t, "linux", goos)
	assert.Equal(t, "arm", goarch)

	goos, goarch, err = boardTarget("raspi", "", "arm")
	require.NoError(t, err)
	assert.Equal(t, "linux", goos)
	assert.Equal(t, "arm", goarch)

	goos, goarch, err = boardTarget("", "darwin", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "darwin", goos)
	assert.Equal(t, "arm64", goarch)

	_, _, err = boardTarget("beaglebone", "", "")
	assert.Error(t, err)
}
