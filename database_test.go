package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDatabase points the global handle at a throwaway database so the
// persistence helpers run against the real schema.
func setupTestDatabase(t *testing.T) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "bot.db")
	require.NoError(t, InitDatabase(context.Background(), dsn))
	t.Cleanup(CloseDatabase)
}

func TestBotConfigRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	value, err := GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "abc123"))
	value, err = GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)

	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "def456"))
	value, err = GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "def456", value)
}

func TestMusicSettingsRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	guildID := snowflake.ID(100)

	settings, err := GetMusicSettings(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, DefaultVolume, settings.Volume)
	assert.Equal(t, RepeatOff, settings.Repeat)

	require.NoError(t, SetMusicVolume(ctx, guildID, 42))
	require.NoError(t, SetMusicRepeat(ctx, guildID, RepeatAll))

	settings, err = GetMusicSettings(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, 42, settings.Volume)
	assert.Equal(t, RepeatAll, settings.Repeat)

	// Another guild stays at the defaults.
	other, err := GetMusicSettings(ctx, snowflake.ID(101))
	require.NoError(t, err)
	assert.Equal(t, DefaultVolume, other.Volume)
	assert.Equal(t, RepeatOff, other.Repeat)
}

func TestMusicSettingsClampOnLoad(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	guildID := snowflake.ID(100)

	// Out-of-range rows (written by older builds or by hand) come back clamped.
	require.NoError(t, SetMusicVolume(ctx, guildID, 999))
	settings, err := GetMusicSettings(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, MaxVolume, settings.Volume)

	_, err = DB.ExecContext(ctx, "UPDATE music_settings SET volume = -10, repeat = 'bogus' WHERE guild_id = ?", guildID.String())
	require.NoError(t, err)
	settings, err = GetMusicSettings(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, 0, settings.Volume)
	assert.Equal(t, RepeatOff, settings.Repeat)
}

func TestBannerRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	guildID := snowflake.ID(200)
	userID := snowflake.ID(300)

	added, err := AddBanner(ctx, guildID, userID, "https://example.com/a.png")
	require.NoError(t, err)
	assert.True(t, added)

	// Same URL for the same guild is a no-op.
	added, err = AddBanner(ctx, guildID, userID, "https://example.com/a.png")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = AddBanner(ctx, guildID, userID, "https://example.com/b.png")
	require.NoError(t, err)
	assert.True(t, added)

	banners, err := GetBanners(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, banners, 2)
	assert.Equal(t, guildID, banners[0].GuildID)
	assert.Equal(t, userID, banners[0].UserID)
	assert.Equal(t, "https://example.com/a.png", banners[0].URL)

	count, err := GetBannersCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	deleted, err := DeleteBanner(ctx, guildID, "https://example.com/a.png")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = DeleteBanner(ctx, guildID, "https://example.com/a.png")
	require.NoError(t, err)
	assert.False(t, deleted)

	banners, err = GetBanners(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, banners, 1)
	assert.Equal(t, "https://example.com/b.png", banners[0].URL)
}

func TestBannerSettingsRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	guildID := snowflake.ID(200)

	settings, err := GetBannerSettings(ctx, guildID)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, DefaultBannerInterval, settings.Interval)

	require.NoError(t, SetBannerEnabled(ctx, guildID, true))
	require.NoError(t, SetBannerInterval(ctx, guildID, 15))
	require.NoError(t, TouchBannerLastChange(ctx, guildID))

	settings, err = GetBannerSettings(ctx, guildID)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, 15, settings.Interval)
	assert.WithinDuration(t, time.Now(), settings.LastChange, time.Minute)

	require.NoError(t, SetBannerEnabled(ctx, guildID, false))
	settings, err = GetBannerSettings(ctx, guildID)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
}

func TestGetExpiredBannerRotations(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	neverRotated := snowflake.ID(1)
	recentlyRotated := snowflake.ID(2)
	overdue := snowflake.ID(3)
	disabled := snowflake.ID(4)

	require.NoError(t, SetBannerEnabled(ctx, neverRotated, true))

	require.NoError(t, SetBannerEnabled(ctx, recentlyRotated, true))
	require.NoError(t, TouchBannerLastChange(ctx, recentlyRotated))

	require.NoError(t, SetBannerEnabled(ctx, overdue, true))
	_, err := DB.ExecContext(ctx, `
		UPDATE banner_settings SET last_change = datetime('now', '-2 hours') WHERE guild_id = ?
	`, overdue.String())
	require.NoError(t, err)

	require.NoError(t, SetBannerEnabled(ctx, disabled, false))

	expired, err := GetExpiredBannerRotations(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{neverRotated, overdue}, expired)
}
