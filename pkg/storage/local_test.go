package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_UploadDownload(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	companyID := uuid.New()

	info, err := s.Upload(ctx, companyID, "../gastos marzo.csv", "text/csv", strings.NewReader("fecha,monto\n2025-03-15,10\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(26), info.Size)
	assert.NotContains(t, info.Path, "/")

	rc, got, err := s.Download(ctx, companyID, info.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fecha,monto\n2025-03-15,10\n", string(body))
	assert.Equal(t, "../gastos marzo.csv", got.Name)

	_, _, err = s.Download(ctx, uuid.New(), info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Delete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	companyID := uuid.New()

	info, err := s.Upload(ctx, companyID, "a.csv", "text/csv", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, companyID, info.ID))

	_, _, err = s.Download(ctx, companyID, info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Prune(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	companyID := uuid.New()
	cutoff := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return cutoff.AddDate(0, 0, -5) }
	old, err := s.Upload(ctx, companyID, "old.csv", "text/csv", strings.NewReader("old"))
	require.NoError(t, err)

	s.now = func() time.Time { return cutoff.AddDate(0, 0, 1) }
	fresh, err := s.Upload(ctx, companyID, "fresh.csv", "text/csv", strings.NewReader("fresh"))
	require.NoError(t, err)

	removed, err := s.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, _, err = s.Download(ctx, companyID, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	rc, _, err := s.Download(ctx, companyID, fresh.ID)
	require.NoError(t, err)
	rc.Close()
}
