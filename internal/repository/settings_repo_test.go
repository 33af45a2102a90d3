package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/testutil"
)

func TestSettingsRepository_GetEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSettingsRepository(db)

	_, err := repo.Get()
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSettingsRepository_Save(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSettingsRepository(db)

	url := "https://llm.example.com/v1/chat/completions"
	require.NoError(t, repo.Save(&model.Setting{AIProviderURL: &url, UpdatedBy: 1}))

	key := "sk-test"
	require.NoError(t, repo.Save(&model.Setting{AIProviderURL: &url, AIProviderAPIKey: &key, UpdatedBy: 2}))

	setting, err := repo.Get()
	require.NoError(t, err)
	require.NotNil(t, setting.AIProviderURL)
	assert.Equal(t, url, *setting.AIProviderURL)
	require.NotNil(t, setting.AIProviderAPIKey)
	assert.Equal(t, "sk-test", *setting.AIProviderAPIKey)
	assert.Equal(t, int64(2), setting.UpdatedBy)

	var count int64
	db.Model(&model.Setting{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
