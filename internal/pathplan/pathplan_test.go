// SPDX-License-Identifier: LGPL-3.0-or-later

package pathplan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperfetch/template"
)

func TestDeriveFilename_ContentDispositionExtended(t *testing.T) {
	meta := ResponseMeta{ContentDisposition: `attachment; filename*=UTF-8''report%20final.pdf`}
	policy := DefaultPolicy()

	got, err := GeneratePath("downloads", "https://example.com/x", meta, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "report final.pdf"), got)
}

func TestDeriveFilename_ContentDispositionQuoted(t *testing.T) {
	meta := ResponseMeta{ContentDisposition: `attachment; filename="data.csv"`}
	policy := DefaultPolicy()

	got, err := GeneratePath("downloads", "https://example.com/x", meta, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "data.csv"), got)
}

func TestDeriveFilename_FallsBackToURLSegment(t *testing.T) {
	policy := DefaultPolicy()
	got, err := GeneratePath("downloads", "https://example.com/path/to/file.zip", ResponseMeta{}, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "file.zip"), got)
}

func TestDeriveFilename_FallsBackToRandomUUID(t *testing.T) {
	policy := DefaultPolicy()
	got, err := GeneratePath("downloads", "https://example.com/", ResponseMeta{SuggestedFilename: "report.pdf"}, policy, template.Context{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, ".pdf"), "expected .pdf suffix, got %s", got)
}

func TestDeriveFilename_CustomTemplate(t *testing.T) {
	policy := DefaultPolicy()
	policy.Naming = NamingCustom
	policy.FilenameTemplate = "{resource_id}-{filename}"

	tctx := template.Context{Filename: "a.bin", Custom: map[string]string{"resource_id": "7"}}
	got, err := GeneratePath("downloads", "https://example.com/a.bin", ResponseMeta{}, policy, tctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "7-a.bin"), got)
}

func TestDeriveFilename_CustomTemplateMissingErrors(t *testing.T) {
	policy := DefaultPolicy()
	policy.Naming = NamingCustom

	_, err := GeneratePath("downloads", "https://example.com/a.bin", ResponseMeta{}, policy, template.Context{})
	require.Error(t, err)
}

func TestOrganization_ByType(t *testing.T) {
	policy := DefaultPolicy()
	policy.Organization = OrgByType

	got, err := GeneratePath("downloads", "https://example.com/a.png", ResponseMeta{ContentType: "image/png"}, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "media/images", "a.png"), got)
}

func TestOrganization_ByTypeUnknownFallsBackToOthers(t *testing.T) {
	policy := DefaultPolicy()
	policy.Organization = OrgByType

	got, err := GeneratePath("downloads", "https://example.com/a.xyz", ResponseMeta{ContentType: "font/ttf"}, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "others", "a.xyz"), got)
}

func TestOrganization_ByDomain(t *testing.T) {
	policy := DefaultPolicy()
	policy.Organization = OrgByDomain

	got, err := GeneratePath("downloads", "https://cdn.example.com/a.bin", ResponseMeta{}, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "cdn.example.com", "a.bin"), got)
}

func TestSanitize_ReplacesReservedCharacters(t *testing.T) {
	policy := DefaultPolicy()
	meta := ResponseMeta{ContentDisposition: `attachment; filename="weird:name*here?.bin"`}

	got, err := GeneratePath("downloads", "https://example.com/x", meta, policy, template.Context{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads", "weird_name_here_.bin"), got)
}

func TestSanitize_TruncatesPreservingExtension(t *testing.T) {
	longName := strings.Repeat("a", 300) + ".bin"
	meta := ResponseMeta{ContentDisposition: `attachment; filename="` + longName + `"`}
	policy := DefaultPolicy()
	policy.MaxLength = 20

	got, err := GeneratePath("downloads", "https://example.com/x", meta, policy, template.Context{})
	require.NoError(t, err)
	base := filepath.Base(got)
	assert.LessOrEqual(t, len(base), 20)
	assert.True(t, strings.HasSuffix(base, ".bin"))
	assert.Contains(t, base, "…")
}

func TestSanitize_RejectsExcessDepth(t *testing.T) {
	policy := DefaultPolicy()
	policy.Organization = OrgCustom
	policy.DirTemplate = "a/b/c/d/e/f/g/h/i/j/k"

	_, err := GeneratePath("downloads", "https://example.com/x.bin", ResponseMeta{}, policy, template.Context{})
	require.Error(t, err)
	var pv *PolicyViolationError
	assert.ErrorAs(t, err, &pv)
}

func TestResolveConflict_Overwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	got, err := ResolveConflict(target, ConflictOverwrite)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestResolveConflict_Rename(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	got, err := ResolveConflict(target, ConflictRename)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_1.bin"), got)

	original, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "x", string(original))
}

func TestResolveConflict_Error(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	_, err := ResolveConflict(target, ConflictError)
	require.Error(t, err)
}

func TestResolveConflict_NoExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "new.bin")

	got, err := ResolveConflict(target, ConflictRename)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}
