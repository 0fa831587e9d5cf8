package export

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apitester/pkg/types"
)

func sampleCode() types.GeneratedCode {
	return types.GeneratedCode{
		FeatureFiles:    []types.GeneratedFile{{Name: "GetUsers.feature", Content: "Feature: users\n"}},
		StepDefinitions: []types.GeneratedFile{{Name: "GetUsersSteps.java", Content: "class GetUsersSteps {}\n"}},
		ServiceClasses:  []types.GeneratedFile{{Name: "GetUsersService.java", Content: "class GetUsersService {}\n"}},
		DataModelStubs:  []types.GeneratedFile{{Name: "UsersResponse.java", Content: "class UsersResponse {}\n"}},
	}
}

func TestLayout(t *testing.T) {
	entries := Layout(sampleCode(), "com.example.api")

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{
		"src/test/resources/features/GetUsers.feature",
		"src/test/java/com/example/api/steps/GetUsersSteps.java",
		"src/test/java/com/example/api/service/GetUsersService.java",
		"src/test/java/com/example/api/model/UsersResponse.java",
	}, paths)
}

func TestLayoutTrimsBasePackage(t *testing.T) {
	entries := Layout(sampleCode(), " com.acme. ")
	assert.Equal(t, "src/test/java/com/acme/steps/GetUsersSteps.java", entries[1].Path)
	assert.Equal(t, "com-acme-bdd-tests.zip", ArchiveName(" com.acme "))
}

func TestLayoutStripsDirectoriesFromNames(t *testing.T) {
	code := types.GeneratedCode{FeatureFiles: []types.GeneratedFile{{Name: "../../etc/passwd", Content: "x"}}}
	entries := Layout(code, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "src/test/resources/features/passwd", entries[0].Path)
}

func TestWriteZip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, sampleCode(), "org.acme"))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 4)
	assert.Equal(t, "src/test/java/org/acme/steps/GetUsersSteps.java", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Feature: users\n", string(content))

	var again bytes.Buffer
	require.NoError(t, WriteZip(&again, sampleCode(), "org.acme"))
	assert.Equal(t, buf.Bytes(), again.Bytes())
}

func TestWriteDir(t *testing.T) {
	dir := t.TempDir()
	written, err := WriteDir(dir, sampleCode(), "com.example.api")
	require.NoError(t, err)
	require.Len(t, written, 4)

	data, err := os.ReadFile(filepath.Join(dir, "src", "test", "java", "com", "example", "api", "model", "UsersResponse.java"))
	require.NoError(t, err)
	assert.Equal(t, "class UsersResponse {}\n", string(data))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "com-example-api-bdd-tests.zip", ArchiveName("com.example.api"))
	assert.Equal(t, "bdd-bdd-tests.zip", ArchiveName(""))
}
