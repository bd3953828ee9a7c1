package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
)

// --- Phase 1: Configuration & Environment ---

type Config struct {
	Token            string
	GuildID          string
	DatabasePath     string
	OwnerIDs         []string
	Silent           bool
	LavalinkName     string
	LavalinkAddress  string
	LavalinkPassword string
	LavalinkSecure   bool
	LoggingWebhook   string
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	nodeName := os.Getenv("LAVALINK_NODE")
	if nodeName == "" {
		nodeName = "vibingway"
	}

	nodeAddress := os.Getenv("LAVALINK_ADDRESS")
	if nodeAddress == "" {
		nodeAddress = "localhost:2333"
	}

	nodeSecure, _ := strconv.ParseBool(os.Getenv("LAVALINK_SECURE"))

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:            token,
		GuildID:          os.Getenv("GUILD_ID"),
		DatabasePath:     dbPath,
		OwnerIDs:         ownerIDs,
		Silent:           silent,
		LavalinkName:     nodeName,
		LavalinkAddress:  nodeAddress,
		LavalinkPassword: os.Getenv("LAVALINK_PASSWORD"),
		LavalinkSecure:   nodeSecure,
		LoggingWebhook:   os.Getenv("LOGGING_WEBHOOK"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	return nil
}

// IsOwner reports whether the given user is listed in OWNER_IDS.
func (c *Config) IsOwner(userID snowflake.ID) bool {
	for _, id := range c.OwnerIDs {
		if id == userID.String() {
			return true
		}
	}
	return false
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

// --- Phase 2: Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS banners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			url TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS banner_settings (
			guild_id TEXT PRIMARY KEY,
			enabled INTEGER DEFAULT 0,
			interval INTEGER DEFAULT 30,
			last_change DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS music_settings (
			guild_id TEXT PRIMARY KEY,
			volume INTEGER DEFAULT 100,
			repeat TEXT DEFAULT 'off',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE banner_settings ADD COLUMN last_change DATETIME",
		"ALTER TABLE music_settings ADD COLUMN repeat TEXT DEFAULT 'off'",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Phase 3: Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Phase 4: Application Logic (Banners) ---

type Banner struct {
	ID        int64
	GuildID   snowflake.ID
	UserID    snowflake.ID
	URL       string
	CreatedAt time.Time
}

// AddBanner inserts a banner and reports whether it was new. A duplicate URL
// for the same guild leaves the table untouched and returns false.
func AddBanner(ctx context.Context, guildID, userID snowflake.ID, url string) (bool, error) {
	result, err := DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO banners (guild_id, user_id, url) VALUES (?, ?, ?)
	`, guildID.String(), userID.String(), url)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func GetBanners(ctx context.Context, guildID snowflake.ID) ([]*Banner, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, user_id, url, created_at
		FROM banners WHERE guild_id = ? ORDER BY id ASC
	`, guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banners []*Banner
	for rows.Next() {
		b := &Banner{}
		var gid, uid string
		if err := rows.Scan(&b.ID, &gid, &uid, &b.URL, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.GuildID, err = snowflake.Parse(gid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse guild ID '%s' for banner %d: %w", gid, b.ID, err)
		}
		b.UserID, err = snowflake.Parse(uid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user ID '%s' for banner %d: %w", uid, b.ID, err)
		}
		banners = append(banners, b)
	}
	return banners, nil
}

func DeleteBanner(ctx context.Context, guildID snowflake.ID, url string) (bool, error) {
	result, err := DB.ExecContext(ctx, "DELETE FROM banners WHERE guild_id = ? AND url = ?", guildID.String(), url)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func GetBannersCount(ctx context.Context) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM banners").Scan(&count)
	return count, err
}

// --- Phase 5: Application Logic (Banner Settings) ---

type BannerSettings struct {
	GuildID    snowflake.ID
	Enabled    bool
	Interval   int
	LastChange time.Time
}

func GetBannerSettings(ctx context.Context, guildID snowflake.ID) (*BannerSettings, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT guild_id, enabled, interval, last_change
		FROM banner_settings WHERE guild_id = ?
	`, guildID.String())

	settings := &BannerSettings{Interval: DefaultBannerInterval}
	var gid string
	var enabled int
	var lastChange sql.NullTime

	err := row.Scan(&gid, &enabled, &settings.Interval, &lastChange)
	if err == sql.ErrNoRows {
		settings.GuildID = guildID
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	settings.GuildID, err = snowflake.Parse(gid)
	if err != nil {
		return nil, fmt.Errorf("failed to parse guild ID '%s' in banner settings: %w", gid, err)
	}
	settings.Enabled = enabled == 1
	settings.LastChange = lastChange.Time
	return settings, nil
}

func SetBannerEnabled(ctx context.Context, guildID snowflake.ID, enabled bool) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO banner_settings (guild_id, enabled) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET enabled = excluded.enabled
	`, guildID.String(), boolToInt(enabled))
	return err
}

func SetBannerInterval(ctx context.Context, guildID snowflake.ID, minutes int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO banner_settings (guild_id, interval) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET interval = excluded.interval
	`, guildID.String(), minutes)
	return err
}

func TouchBannerLastChange(ctx context.Context, guildID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO banner_settings (guild_id, last_change) VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET last_change = CURRENT_TIMESTAMP
	`, guildID.String())
	return err
}

// GetExpiredBannerRotations returns the guilds whose rotation is enabled and
// whose interval has elapsed since the last banner change.
func GetExpiredBannerRotations(ctx context.Context) ([]snowflake.ID, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT guild_id FROM banner_settings
		WHERE enabled = 1
		AND (last_change IS NULL OR strftime('%s', 'now') - strftime('%s', last_change) >= interval * 60)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []snowflake.ID
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(gid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse guild ID '%s' in banner settings: %w", gid, err)
		}
		guilds = append(guilds, id)
	}
	return guilds, nil
}

// --- Phase 6: Application Logic (Music Settings) ---

type MusicSettings struct {
	GuildID snowflake.ID
	Volume  int
	Repeat  Repeat
}

func GetMusicSettings(ctx context.Context, guildID snowflake.ID) (*MusicSettings, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT volume, repeat FROM music_settings WHERE guild_id = ?
	`, guildID.String())

	settings := &MusicSettings{GuildID: guildID, Volume: DefaultVolume, Repeat: RepeatOff}
	var volume int
	var repeat string

	err := row.Scan(&volume, &repeat)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	settings.Volume = min(max(0, volume), MaxVolume)
	settings.Repeat = ParseRepeat(repeat)
	return settings, nil
}

func SetMusicVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO music_settings (guild_id, volume) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET volume = excluded.volume, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), volume)
	return err
}

func SetMusicRepeat(ctx context.Context, guildID snowflake.ID, mode Repeat) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO music_settings (guild_id, repeat) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET repeat = excluded.repeat, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), string(mode))
	return err
}
