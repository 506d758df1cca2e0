package bundle

import (
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Scanner, dir string) ([]string, error) {
	t.Helper()
	seq, err := s.Find(dir)
	require.NoError(t, err)

	var names []string
	for entry, err := range seq {
		if err != nil {
			return names, err
		}
		names = append(names, entry.Name)
	}
	return names, nil
}

func TestScanner_Find_MatchesOnlyBundleArchives(t *testing.T) {
	pkg := packageOf(map[string][]byte{
		"bundles/a.jar":        []byte("a"),
		"bundles/nested/b.jar": []byte("b"),
		"bundles/readme.txt":   []byte("r"),
		"bundles/c.jar.bak":    []byte("c"),
		"other/c.jar":          []byte("c"),
		"lib/bundles/d.jar":    []byte("d"),
		"bundles-extra/e.jar":  []byte("e"),
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\r\n"),
	})

	names, err := collect(t, NewScanner(pkg), "bundles")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bundles/a.jar", "bundles/nested/b.jar", "bundles-extra/e.jar"}, names)
}

func TestScanner_Find_MissingDirectory(t *testing.T) {
	pkg := packageOf(map[string][]byte{"other/a.jar": []byte("a")})

	_, err := NewScanner(pkg).Find("bundles")

	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "open", derr.Op)
	assert.Equal(t, ErrorCodePackageNotFound, derr.Code)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestScanner_Find_LocationIsAFile(t *testing.T) {
	pkg := packageOf(map[string][]byte{"bundles": []byte("not a dir")})

	_, err := NewScanner(pkg).Find("bundles")

	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "open", derr.Op)
}

func TestScanner_Find_IsRestartable(t *testing.T) {
	pkg := packageOf(map[string][]byte{
		"bundles/a.jar": []byte("a"),
		"bundles/b.jar": []byte("b"),
	})
	seq, err := NewScanner(pkg).Find("bundles")
	require.NoError(t, err)

	var first, second []string
	for entry, err := range seq {
		require.NoError(t, err)
		first = append(first, entry.Name)
	}
	for entry, err := range seq {
		require.NoError(t, err)
		second = append(second, entry.Name)
	}
	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
}

func TestScanner_Find_StopsWhenConsumerBreaks(t *testing.T) {
	pkg := packageOf(map[string][]byte{
		"bundles/a.jar": []byte("a"),
		"bundles/b.jar": []byte("b"),
		"bundles/c.jar": []byte("c"),
	})
	seq, err := NewScanner(pkg).Find("bundles")
	require.NoError(t, err)

	count := 0
	for range seq {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestScanner_Find_ReadFailure(t *testing.T) {
	fsys := failingFS{
		MapFS: fstest.MapFS{
			"bundles/a.jar":        &fstest.MapFile{Data: []byte("a")},
			"bundles/broken/b.jar": &fstest.MapFile{Data: []byte("b")},
		},
		bad: "bundles/broken",
	}
	names, err := collect(t, NewScanner(NewPackage(fsys, "mem:/")), "bundles")

	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "read", derr.Op)
	assert.Equal(t, ErrorCodePackageUnreadable, derr.Code)
	assert.Equal(t, []string{"bundles/a.jar"}, names)
}

func TestScanner_WithPattern(t *testing.T) {
	pkg := packageOf(map[string][]byte{
		"plugins/a.zip": []byte("a"),
		"plugins/b.jar": []byte("b"),
	})
	s := NewScanner(pkg, WithPattern(regexp.MustCompile(`^plugins/.*\.zip$`)))

	names, err := collect(t, s, "plugins")
	require.NoError(t, err)
	assert.Equal(t, []string{"plugins/a.zip"}, names)
}
