package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
entities:
  users:
    backend: postgres
    fields:
      - name: name
        type: string
      - name: age
        type: number
  sessions:
    backend: redis
  notes:
    backend: memory
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	users, ok := s.Entity("users")
	require.True(t, ok)
	assert.Equal(t, "users", users.Name)
	assert.Equal(t, "postgres", users.Backend)
	require.Len(t, users.Fields, 2)
	assert.Equal(t, "name", users.Fields[0].Name)
	assert.Equal(t, "string", users.Fields[0].Type)

	sessions, ok := s.Entity("sessions")
	require.True(t, ok)
	assert.Equal(t, "redis", sessions.Backend)

	_, ok = s.Entity("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"users", "sessions", "notes"}, s.EntityNames())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("entities: [not, a, map]"))
	assert.Error(t, err)
}

func TestHasField(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	users, _ := s.Entity("users")
	assert.True(t, users.HasField("name"))
	assert.True(t, users.HasField("age"))
	assert.False(t, users.HasField("email"))

	// The identifier is always accepted.
	assert.True(t, users.HasField("id"))

	// Entities without declared fields accept anything.
	notes, _ := s.Entity("notes")
	assert.True(t, notes.HasField("anything"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	_, ok := s.Entity("users")
	assert.True(t, ok)

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
