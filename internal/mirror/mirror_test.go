package mirror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	cfg, err := Select("")
	require.NoError(t, err)
	require.Equal(t, GitHub, cfg)

	cfg, err = Select(" Pulumi ")
	require.NoError(t, err)
	require.Equal(t, Pulumi, cfg)

	_, err = Select("ftp")
	require.Error(t, err)
}

func TestDownloadURL(t *testing.T) {
	t.Parallel()

	published := "https://github.com/pulumi/pulumi/releases/download/v3.10.1/pulumi-v3.10.1-linux-x64.tar.gz"
	require.Equal(t, published, GitHub.DownloadURL("pulumi-v3.10.1-linux-x64.tar.gz", published))
	require.Equal(t,
		"https://get.pulumi.com/releases/sdk/pulumi-v3.10.1-linux-x64.tar.gz",
		Pulumi.DownloadURL("pulumi-v3.10.1-linux-x64.tar.gz", published))
}
