package initiation_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/initiation"
)

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestDefaultNewEnvironment(t *testing.T) {
	target := filepath.Join(t.TempDir(), "jenkins_home")
	d := initiation.Default{Now: func() time.Time { return fixedNow }}

	require.NoError(t, d.InitializeNewEnvironment(context.Background(), target))
	require.DirExists(t, target)

	m, err := initiation.ReadMarker(target)
	require.NoError(t, err)
	require.True(t, m.Fresh)
	require.Empty(t, m.LastArchive)
	require.True(t, fixedNow.Equal(m.InitializedAt))
}

func TestDefaultRestoredEnvironment(t *testing.T) {
	target := t.TempDir()
	m, err := initiation.ReadMarker(target)
	require.NoError(t, err)
	require.Nil(t, m)

	require.NoError(t, initiation.Default{}.InitializeRestoredEnvironment(context.Background(), target, "b3"))
	m, err = initiation.ReadMarker(target)
	require.NoError(t, err)
	require.False(t, m.Fresh)
	require.Equal(t, "b3", m.LastArchive)
}

func TestHooks(t *testing.T) {
	target := t.TempDir()
	s := initiation.NewFromConfig(&config.Hooks{
		NewEnvironment:      `echo new > hook.out`,
		RestoredEnvironment: `echo "$RESTORABLE_LAST_ARCHIVE $(basename "$RESTORABLE_TARGET_DIR")" > hook.out`,
		TimeoutMinutes:      1,
	}, zaptest.NewLogger(t).Sugar())
	require.IsType(t, &initiation.Hooks{}, s)

	ctx := context.Background()
	require.NoError(t, s.InitializeNewEnvironment(ctx, target))
	data, err := os.ReadFile(filepath.Join(target, "hook.out"))
	require.NoError(t, err)
	require.Equal(t, "new", strings.TrimSpace(string(data)))

	require.NoError(t, s.InitializeRestoredEnvironment(ctx, target, "b9"))
	data, err = os.ReadFile(filepath.Join(target, "hook.out"))
	require.NoError(t, err)
	require.Equal(t, "b9 "+filepath.Base(target), strings.TrimSpace(string(data)))

	m, err := initiation.ReadMarker(target)
	require.NoError(t, err)
	require.Equal(t, "b9", m.LastArchive)
}

func TestHooksFailure(t *testing.T) {
	s := initiation.NewFromConfig(&config.Hooks{
		RestoredEnvironment: `echo broken >&2; exit 3`,
	}, zaptest.NewLogger(t).Sugar())

	err := s.InitializeRestoredEnvironment(context.Background(), t.TempDir(), "b1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

func TestHooksTimeout(t *testing.T) {
	h := &initiation.Hooks{
		Strategy:       initiation.Default{},
		NewEnvironment: `sleep 5`,
		Timeout:        50 * time.Millisecond,
	}
	err := h.InitializeNewEnvironment(context.Background(), t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestNewFromConfigWithoutHooks(t *testing.T) {
	require.IsType(t, initiation.Default{}, initiation.NewFromConfig(nil, nil))
	require.IsType(t, initiation.Default{}, initiation.NewFromConfig(&config.Hooks{TimeoutMinutes: 5}, nil))
}
