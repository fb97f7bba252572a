package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/patch"
)

func TestDraftService_CreateStampsContentHash(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	created, err := service.Create(t.Context(), &models.Draft{
		Title:    "Add retry budget",
		Priority: 2,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.ContentHash)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ContentHash, fetched.ContentHash)
}

func TestDraftService_FetchValidation(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	_, err := service.FetchByID(t.Context(), "")
	assert.ErrorIs(t, err, ErrDraftIDRequired)

	_, err = service.FetchByID(t.Context(), "absent")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestDraftService_ApplyPatch(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	created, err := service.Create(t.Context(), &models.Draft{
		Title:  "Add retry budget",
		Labels: []string{"infra"},
	})
	require.NoError(t, err)

	result, err := service.ApplyPatch(t.Context(), created.ID, patch.Patch{
		"title":  "Add a retry budget",
		"labels": map[string]any{"op": "append", "values": []any{"reliability"}},
	}, created.ContentHash)
	require.NoError(t, err)

	assert.Equal(t, "Add a retry budget", result.Draft.Title)
	assert.Equal(t, []string{"infra", "reliability"}, result.Draft.Labels)
	assert.Equal(t, created.ContentHash, result.BeforeHash)
	assert.NotEqual(t, result.BeforeHash, result.AfterHash)

	// The patched draft is durably stored with its new hash.
	stored, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, result.AfterHash, stored.ContentHash)
	assert.Equal(t, "Add a retry budget", stored.Title)
}

func TestDraftService_ApplyPatchStaleHash(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	created, err := service.Create(t.Context(), &models.Draft{Title: "Original"})
	require.NoError(t, err)

	_, err = service.ApplyPatch(t.Context(), created.ID, patch.Patch{"title": "Changed"}, "stale-hash")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDraftHashMismatch)
	assert.True(t, IsConflictError(err))

	stored, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Title)
}

func TestDraftService_ApplyPatchRejectionLeavesDraftUntouched(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	created, err := service.Create(t.Context(), &models.Draft{Title: "Original"})
	require.NoError(t, err)

	_, err = service.ApplyPatch(t.Context(), created.ID, patch.Patch{
		"title":       "Changed",
		"reporter_id": "nope",
	}, "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	stored, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Title)
	assert.Equal(t, created.ContentHash, stored.ContentHash)
}

func TestDraftService_ApplyPatchValidation(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	_, err := service.ApplyPatch(t.Context(), "", patch.Patch{"title": "x"}, "")
	assert.ErrorIs(t, err, ErrDraftIDRequired)

	_, err = service.ApplyPatch(t.Context(), "some-id", patch.Patch{}, "")
	assert.ErrorIs(t, err, ErrEmptyPatch)
}

func TestDraftService_PatchHash(t *testing.T) {
	stack := newTestStack(t)
	service := NewDraft(stack.persistence)

	a, err := service.PatchHash(patch.Patch{"title": "x", "priority": 1})
	require.NoError(t, err)

	b, err := service.PatchHash(patch.Patch{"priority": 1, "title": "x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)

	_, err = service.PatchHash(patch.Patch{})
	assert.ErrorIs(t, err, ErrEmptyPatch)
}
