package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/mw-com-go/identity"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

const sampleManifest = `{
	"max_subscribers": 4,
	"instances": [
		{
			"specifier": "my/Port",
			"service_id": 1,
			"event_ids": [10, 11],
			"field_ids": [],
			"instance_id": 1,
			"binding": "lola",
			"quality": "qm",
			"max_samples": 8
		}
	]
}`

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeManifest(t, sampleManifest)

	m, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(4), m.MaxSubscribers)
	ids, ok := m.Deployments["my/Port"]
	require.True(t, ok)
	require.Len(t, ids, 1)
	assert.Equal(t, identity.ServiceId(1), ids[0].ServiceType.ServiceID)
	assert.False(t, ids[0].IsFindAny())
}

func TestLoader_Load_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, mwerrors.ErrInvalidConfiguration)
}

func TestLoader_Load_InvalidJSON(t *testing.T) {
	path := writeManifest(t, `{not json`)
	_, err := NewLoader().Load(path)
	assert.ErrorIs(t, err, mwerrors.ErrInvalidConfiguration)
}

func TestLoader_Load_FailsValidation(t *testing.T) {
	path := writeManifest(t, `{"max_subscribers": 1, "instances": [{"specifier": "a", "binding": "bogus", "quality": "qm", "max_samples": 1}]}`)
	_, err := NewLoader().Load(path)
	assert.ErrorIs(t, err, mwerrors.ErrInvalidConfiguration)
}

func TestResolver_Resolve(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	m, err := NewLoader().Load(path)
	require.NoError(t, err)

	resolver := NewResolver(m)

	specifier, err := identity.NewInstanceSpecifier("my/Port")
	require.NoError(t, err)

	ids, err := resolver.Resolve(specifier)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestResolver_Resolve_Unknown(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	m, err := NewLoader().Load(path)
	require.NoError(t, err)

	resolver := NewResolver(m)
	specifier, err := identity.NewInstanceSpecifier("nowhere/Port")
	require.NoError(t, err)

	_, err = resolver.Resolve(specifier)
	assert.ErrorIs(t, err, mwerrors.ErrInstanceIDCouldNotBeResolved)
}
