package version

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/remote"
	"github.com/tomski747/pvm/internal/storage"
)

// releaseServer 模拟 GitHub releases API 与发布包下载。
func releaseServer(t *testing.T, versions []string, tamper string) *httptest.Server {
	t.Helper()
	archives := map[string][]byte{}
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/releases":
			var releases []map[string]any
			for _, v := range versions {
				name := testTarget.AssetName(v)
				releases = append(releases, map[string]any{
					"tag_name": "v" + v,
					"assets": []map[string]any{{
						"name":                 name,
						"browser_download_url": server.URL + "/download/" + name,
						"digest":               digestOf(archives[name]),
					}},
				})
			}
			_ = json.NewEncoder(w).Encode(releases)
		case strings.HasPrefix(r.URL.Path, "/download/"):
			name := strings.TrimPrefix(r.URL.Path, "/download/")
			payload, ok := archives[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			if strings.Contains(name, "v"+tamper+"-") {
				payload = append([]byte{}, payload...)
				payload[len(payload)/2] ^= 0xff
			}
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	for _, v := range versions {
		archives[testTarget.AssetName(v)] = pulumiArchive(t, v)
	}
	t.Cleanup(server.Close)
	return server
}

type testStack struct {
	store     *storage.FileStorage
	registry  *Registry
	installer *Installer
	switcher  *Switcher
	lister    *Lister
}

func newTestStack(t *testing.T, server *httptest.Server) testStack {
	t.Helper()
	store := newTestStore(t)
	client := remote.NewClient(
		remote.WithBaseURL(server.URL+"/releases"),
		remote.WithHTTPClient(server.Client()),
		remote.WithTarget(testTarget),
		remote.WithRetryPolicy(fastRetry()),
	)
	dl := NewDownloader(WithHTTPClient(server.Client()), WithRetryPolicy(fastRetry()))
	return testStack{
		store:     store,
		registry:  NewRegistry(store, client, nil),
		installer: NewInstaller(store, dl, client, nil),
		switcher:  NewSwitcher(store, newTestEnv(store), nil),
		lister:    NewLister(client, store),
	}
}

func TestInstallUseCurrentByPrefix(t *testing.T) {
	t.Parallel()

	server := releaseServer(t, []string{"3.9.0", "3.10.0", "3.10.1"}, "")
	stack := newTestStack(t, server)
	ctx := context.Background()

	entry, err := stack.registry.ResolveRemote(ctx, MustParseSpec("3.10"), false)
	require.NoError(t, err)
	require.Equal(t, "3.10.1", entry.Number)

	res, err := stack.installer.Install(ctx, *entry)
	require.NoError(t, err)
	require.Equal(t, "3.10.1", res.Version.Number)

	_, err = stack.switcher.UseVersion(MustParseSpec("3.10"))
	require.NoError(t, err)

	sel, err := stack.lister.Current(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "3.10.1", sel.Version.Number)
}

func TestTamperedDownloadInstallsNothing(t *testing.T) {
	t.Parallel()

	server := releaseServer(t, []string{"3.9.0", "3.10.0", "3.10.1"}, "3.10.1")
	stack := newTestStack(t, server)
	ctx := context.Background()

	entry, err := stack.registry.ResolveRemote(ctx, MustParseSpec("3.10.1"), false)
	require.NoError(t, err)

	_, err = stack.installer.Install(ctx, *entry)
	require.Equal(t, apperr.DigestMismatch, apperr.KindOf(err))
	require.Equal(t, 5, apperr.ExitCode(err))

	versions, err := stack.store.List()
	require.NoError(t, err)
	require.Empty(t, versions)
	require.Zero(t, countEntries(t, stack.store.VersionsDir()))
}
