package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/metagraph-dev/metagraph/internal/loader"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

var catalogArgs = []string{
	"--no-color",
	"--schemas", "../../loader/testdata/catalog/schemas",
	"--registry-file", "../../loader/testdata/catalog/entity-registry.yml",
}

// run executes the root command with args and returns stdout and stderr
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runCatalog(t *testing.T, args ...string) (string, string, error) {
	return run(t, append(args, catalogArgs...)...)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "metagraph version: "+Version)
	assert.Contains(t, out, "Go version: ")
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, _, err := runCatalog(t, "entities", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestEntitiesCommand(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		out, _, err := runCatalog(t, "entities")
		require.NoError(t, err)
		for _, name := range []string{"mlModelGroup", "mlModel", "corpuser", "corpGroup", "domain"} {
			assert.Contains(t, out, name)
		}
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := runCatalog(t, "entities", "--format", "json")
		require.NoError(t, err)

		var entities []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entities))
		require.Len(t, entities, 5)
		assert.Equal(t, "mlModelGroup", entities[0]["name"])
	})
}

func TestAspectsCommand(t *testing.T) {
	out, _, err := runCatalog(t, "aspects")
	require.NoError(t, err)
	assert.Contains(t, out, "ownership")
	assert.Contains(t, out, "mlModelGroupProperties")
}

func TestAspectCommand_JSONIsSourceDocument(t *testing.T) {
	out, _, err := runCatalog(t, "aspect", "status", "--format", "json")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "record", doc["type"])
	assert.Equal(t, "Status", doc["name"])
	require.IsType(t, map[string]any{}, doc["Aspect"])
	assert.Equal(t, "status", doc["Aspect"].(map[string]any)["name"])
}

func TestEntityCommand_NotFound(t *testing.T) {
	_, stderr, err := runCatalog(t, "entity", "mlModelGrup")
	require.Error(t, err)

	var reported reportedError
	assert.ErrorAs(t, err, &reported)
	assert.Contains(t, stderr, "mlModelGrup")
	assert.Contains(t, stderr, "mlModelGroup", "close names are suggested")
}

func TestEntityCommand_CaseInsensitive(t *testing.T) {
	out, _, err := runCatalog(t, "entity", "MLMODELGROUP")
	require.NoError(t, err)
	assert.Contains(t, out, "mlModelGroupKey")
	assert.Contains(t, out, "MemberOf")
}

func TestRelationshipsCommand(t *testing.T) {
	t.Run("incoming", func(t *testing.T) {
		out, _, err := runCatalog(t, "relationships", "mlModelGroup", "--direction", "incoming", "--format", "json")
		require.NoError(t, err)

		var rels []registry.Relationship
		require.NoError(t, json.Unmarshal([]byte(out), &rels))
		assert.Equal(t, []registry.Relationship{
			{Name: "MemberOf", Source: "mlModel", Target: "mlModelGroup", Aspect: "mlModelProperties", FieldPath: "mlModelProperties.groups"},
		}, rels)
	})

	t.Run("name filter", func(t *testing.T) {
		out, _, err := runCatalog(t, "relationships", "mlModelGroup", "--name", "AssociatedWith", "--format", "json")
		require.NoError(t, err)

		var rels []registry.Relationship
		require.NoError(t, json.Unmarshal([]byte(out), &rels))
		require.Len(t, rels, 1)
		assert.Equal(t, "domain", rels[0].Target)
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, _, err := runCatalog(t, "relationships", "mlModelGroup", "-d", "sideways")
		assert.Error(t, err)
	})

	t.Run("types", func(t *testing.T) {
		out, _, err := runCatalog(t, "relationships")
		require.NoError(t, err)
		assert.Contains(t, out, "OwnedBy")
		assert.Contains(t, out, "MemberOf")
	})
}

func TestGraphCommand_RejectsNegativeDepth(t *testing.T) {
	_, _, err := runCatalog(t, "graph", "mlModel", "--depth", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--depth")
}

func TestValidateCommand(t *testing.T) {
	t.Run("json report", func(t *testing.T) {
		out, _, err := runCatalog(t, "validate", "--format", "json")
		require.NoError(t, err)

		var report validationReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Valid)
		assert.Equal(t, 10, report.Aspects)
		assert.Equal(t, 5, report.Entities)
		assert.Len(t, report.Fingerprint, 64)
	})

	t.Run("load error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.avsc"), []byte(`{"type":`), 0644))

		_, stderr, err := run(t, "validate", "--no-color", "--schemas", dir, "--registry-file", "")
		require.Error(t, err)
		assert.Contains(t, stderr, "INVALID SCHEMA")
		assert.Contains(t, stderr, "bad.avsc")
	})
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, _, err := run(t, "init", "--yes", "--dir", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "metagraph.yml")

	path := filepath.Join(dir, "metagraph.yml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var pf projectFile
	require.NoError(t, yaml.Unmarshal(data, &pf))
	assert.Equal(t, []string{"schemas"}, pf.Schema.Dirs)
	assert.Equal(t, "localhost:8080", pf.Server.Addr)
	assert.Len(t, pf.Auth.Secret, 64)

	assert.DirExists(t, filepath.Join(dir, "schemas"))
	m, err := loader.ReadManifest(filepath.Join(dir, "entity-registry.yml"))
	require.NoError(t, err)
	assert.Empty(t, m.Entities)

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, _, err := run(t, "init", "--yes", "--dir", dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("new project validates", func(t *testing.T) {
		_, _, err := run(t, "validate", "--config", path)
		assert.NoError(t, err)
	})
}

func TestTokenCommand(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("METAGRAPH_AUTH_SECRET", "")
		_, _, err := runCatalog(t, "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.secret")
	})

	t.Run("signed with configured secret", func(t *testing.T) {
		t.Setenv("METAGRAPH_AUTH_SECRET", "test-secret")
		out, _, err := runCatalog(t, "token", "--subject", "ci", "--ttl", "1h")
		require.NoError(t, err)

		raw := strings.TrimSpace(out)
		claims := jwt.MapClaims{}
		_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte("test-secret"), nil
		})
		require.NoError(t, err)
		sub, err := claims.GetSubject()
		require.NoError(t, err)
		assert.Equal(t, "ci", sub)
	})
}

func TestExportCommand(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "metagraph.db")

	out, _, err := runCatalog(t, "export", "--to", url)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 10 aspects and 5 entities to sqlite")

	out, _, err = runCatalog(t, "export", "--to", url)
	require.NoError(t, err)
	assert.Contains(t, out, "store is up to date")

	t.Run("read back", func(t *testing.T) {
		t.Setenv("METAGRAPH_DATABASE_URL", url)
		out, _, err := run(t, "entities", "--from-store", "--format", "json")
		require.NoError(t, err)

		var entities []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entities))
		assert.Len(t, entities, 5)
	})

	t.Run("no target", func(t *testing.T) {
		t.Setenv("METAGRAPH_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "")
		_, _, err := runCatalog(t, "export")
		assert.Error(t, err)
	})
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "metagraph")

	_, _, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestCompletion_EntityNames(t *testing.T) {
	args := append([]string{"__complete", "entity"}, catalogArgs...)
	out, _, err := run(t, append(args, "ml")...)
	require.NoError(t, err)
	assert.Contains(t, out, "mlModelGroup")
	assert.Contains(t, out, "mlModel\n")
	assert.NotContains(t, out, "corpuser")
}
