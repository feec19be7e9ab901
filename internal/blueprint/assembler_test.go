package blueprint

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAssemble_WritesArtifact(t *testing.T) {
	dir := t.TempDir()
	assembler := NewAssembler(dir, "Blueprint Generator", "1.0.0", nil)
	spec := Spec{Technology: "python", Version: "3.11", PackageManager: "pip"}
	script := "#!/bin/sh\necho ok\n"

	out, err := assembler.Assemble(spec, script)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "python-3.11-pip"), out)

	data, err := os.ReadFile(filepath.Join(out, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, script, string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(out, "run.sh"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), "run.sh must be executable")
	}

	metaRaw, err := os.ReadFile(filepath.Join(out, "blueprint.yml"))
	require.NoError(t, err)

	var meta Metadata
	require.NoError(t, yaml.Unmarshal(metaRaw, &meta))
	assert.Equal(t, "python-3.11-pip", meta.Name)
	assert.Equal(t, "1.0.0", meta.Version)
	assert.Equal(t, "Blueprint Generator", meta.Author)
	assert.Contains(t, meta.Description, "python 3.11")
}

func TestAssemble_RejectsEmptyScript(t *testing.T) {
	assembler := NewAssembler(t.TempDir(), "a", "1.0.0", nil)
	spec := Spec{Technology: "python", Version: "3.11", PackageManager: "pip"}

	_, err := assembler.Assemble(spec, "")
	assert.Error(t, err)
}

func TestAssemble_RejectsInvalidSpec(t *testing.T) {
	assembler := NewAssembler(t.TempDir(), "a", "1.0.0", nil)

	_, err := assembler.Assemble(Spec{Technology: "python"}, "#!/bin/sh\n")
	assert.Error(t, err)
}

func TestAssemble_OverwritesPriorBlueprint(t *testing.T) {
	dir := t.TempDir()
	assembler := NewAssembler(dir, "a", "1.0.0", nil)
	spec := Spec{Technology: "python", Version: "3.11", PackageManager: "pip"}

	_, err := assembler.Assemble(spec, "#!/bin/sh\necho old\n")
	require.NoError(t, err)
	out, err := assembler.Assemble(spec, "#!/bin/sh\necho new\n")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "run.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "new")
}
