package cjmod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/syntax"
)

const sampleMeta = `
[Info] {
    name = "Chtholly";
    version = "1.2.0";
    description = "example module";
    author = "someone";
    license = "MIT";
    minCHTLVersion = "1.0.0";
    maxCHTLVersion = "2.0.0";
    entryPoint = "CreateExtension";
}

[Export] {
    @Style ChthollyStyle;
    @Element ChthollyCard;
    @Var ChthollyColors;
}
`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata(sampleMeta, "info/Chtholly.chtl")
	require.NoError(t, err)

	assert.Equal(t, "Chtholly", meta.Info.Name)
	assert.Equal(t, "1.2.0", meta.Info.Version)
	assert.Equal(t, "example module", meta.Info.Description)
	assert.Equal(t, "MIT", meta.Info.License)
	assert.Equal(t, "CreateExtension", meta.Info.EntryPoint)

	require.Len(t, meta.Exports, 3)
	assert.Equal(t, syntax.TagStyle, meta.Exports[0].Tag)
	assert.Equal(t, "ChthollyStyle", meta.Exports[0].Name)
	assert.Equal(t, syntax.TagVar, meta.Exports[2].Tag)
}

func TestParseMetadataMissingRequired(t *testing.T) {
	_, err := ParseMetadata(`[Info] { name = "x"; }`, "info/x.chtl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestParseMetadataUnexpectedContent(t *testing.T) {
	_, err := ParseMetadata(`div { }`, "info/x.chtl")
	require.Error(t, err)
}

func TestCheckVersion(t *testing.T) {
	meta, err := ParseMetadata(sampleMeta, "info/Chtholly.chtl")
	require.NoError(t, err)

	assert.NoError(t, meta.CheckVersion("1.0.0"))
	assert.NoError(t, meta.CheckVersion("1.5.3"))
	assert.Error(t, meta.CheckVersion("0.9.0"))
	assert.Error(t, meta.CheckVersion("2.1.0"))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.0.0", "1.0.0"))
	assert.Equal(t, -1, compareVersions("1.0.0", "1.0.1"))
	assert.Equal(t, 1, compareVersions("1.10.0", "1.9.9"))
	assert.Equal(t, 0, compareVersions("1.0", "1.0.0"))
	assert.Equal(t, -1, compareVersions("v1.0", "v2"))
}
