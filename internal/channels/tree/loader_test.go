package tree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/testsupport"
	"github.com/peteches/houston/internal/channels/tree"
)

func seedBaseWithChildren(memory *testsupport.MemoryCatalog) {
	memory.SeedChannel(
		catalog.Channel{Label: "php-base", Name: "PHP Base"},
		catalog.PackageReference{Name: "php", Version: "7.4", Release: "1", Architecture: "x86_64"},
	)
	memory.SeedChannel(
		catalog.Channel{Label: "php-base-extras", Name: "PHP Extras", ParentLabel: "php-base"},
		catalog.PackageReference{Name: "php-gd", Version: "7.4", Release: "1", Architecture: "x86_64"},
	)
	memory.SeedChannel(
		catalog.Channel{Label: "php-base-devel", Name: "PHP Devel", ParentLabel: "php-base"},
		catalog.PackageReference{Name: "php-devel", Version: "7.4", Release: "1", Architecture: "x86_64"},
	)
}

func TestNewLoaderRequiresClient(t *testing.T) {
	loader, creationError := tree.NewLoader(nil)
	require.ErrorIs(t, creationError, tree.ErrCatalogClientNotConfigured)
	require.Nil(t, loader)
}

func TestLoadSnapshotsBaseAndChildren(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedBaseWithChildren(memory)

	loader, creationError := tree.NewLoader(memory)
	require.NoError(t, creationError)

	snapshot, loadError := loader.Load(context.Background(), "php-base")
	require.NoError(t, loadError)
	require.Equal(t, "php-base", snapshot.Base.Label)
	require.Len(t, snapshot.Base.Packages, 1)
	require.Len(t, snapshot.Children, 2)
	require.Equal(t, "php-base-extras", snapshot.Children[0].Label)
	require.Len(t, snapshot.Children[0].Packages, 1)
}

func TestLoadMissingChannel(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	loader, creationError := tree.NewLoader(memory)
	require.NoError(t, creationError)

	_, loadError := loader.Load(context.Background(), "absent-channel")
	require.True(t, catalog.IsNotFound(loadError))
}

func TestLoadedSnapshotIsImmutable(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedBaseWithChildren(memory)

	loader, creationError := tree.NewLoader(memory)
	require.NoError(t, creationError)

	snapshot, loadError := loader.Load(context.Background(), "php-base")
	require.NoError(t, loadError)

	addError := memory.AddPackage(context.Background(), "php-base", catalog.PackageReference{Name: "php-cli", Version: "7.4", Release: "1", Architecture: "x86_64"})
	require.NoError(t, addError)

	require.Len(t, snapshot.Base.Packages, 1)

	reloaded, reloadError := loader.Load(context.Background(), "php-base")
	require.NoError(t, reloadError)
	require.Len(t, reloaded.Base.Packages, 2)
}

func TestPackageIndexKeepsHighestBuild(t *testing.T) {
	channel := catalog.Channel{
		Packages: []catalog.PackageReference{
			{Name: "foo", Version: "1.0", Release: "1", Architecture: "x86_64"},
			{Name: "foo", Version: "1.2", Release: "1", Architecture: "x86_64"},
			{Name: "bar", Version: "2.0", Release: "3", Architecture: "x86_64"},
		},
	}

	index := tree.PackageIndex(channel)
	require.Len(t, index, 2)
	require.Equal(t, "1.2", index["foo.x86_64"].Version)
}
