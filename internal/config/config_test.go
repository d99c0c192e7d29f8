package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - name: porch
    rtsp_url: rtsp://10.0.0.5/stream1
`)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Cameras, 1)

	cam := doc.Cameras[0]
	assert.Equal(t, TransportTCP, cam.Transport)
	assert.Equal(t, 2*time.Second, cam.ProbeTimeout.Value())
	assert.Equal(t, 10, cam.ProbeAttempts)
	assert.Equal(t, 2*time.Second, cam.ProbeDelay.Value())
	assert.Equal(t, 25, cam.TargetFPS)
	assert.Equal(t, 2*time.Second, cam.ReconnectDelay.Value())
	assert.Equal(t, 4, cam.MaxInFlight)

	assert.Equal(t, ":8443", doc.SignalAddr)
	assert.Equal(t, ":9090", doc.MetricsAddr)
	assert.Equal(t, ":8080", doc.HealthAddr)
}

func TestLoadRejectsDuplicateCameraNames(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - name: porch
    rtsp_url: rtsp://10.0.0.5/stream1
  - name: porch
    rtsp_url: rtsp://10.0.0.6/stream1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingRTSPURL(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - name: porch
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidTransport(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - name: porch
    rtsp_url: rtsp://10.0.0.5/stream1
    transport: sctp
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationUnmarshalYAML(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - name: porch
    rtsp_url: rtsp://10.0.0.5/stream1
    probe_timeout: 5s
    probe_delay: 1500ms
`)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, doc.Cameras[0].ProbeTimeout.Value())
	assert.Equal(t, 1500*time.Millisecond, doc.Cameras[0].ProbeDelay.Value())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
