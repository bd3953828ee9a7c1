package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	musicColor    = color.New(color.FgMagenta)
	bannerColor   = color.New(color.FgMagenta)
	lavalinkColor = color.New(color.FgMagenta)
	sessionColor  = color.New(color.FgMagenta)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := GetProjectName() + ".log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogMusic(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "music"))
}

func LogBanner(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "banner"))
}

func LogLavalink(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "lavalink"))
}

func LogSession(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "session"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
		if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
			if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
				displayMsg = r.Message
			}
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "MUSIC":
		return musicColor
	case "BANNER":
		return bannerColor
	case "LAVALINK":
		return lavalinkColor
	case "SESSION":
		return sessionColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

// --- Utilities & State ---

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotKillFail         = "Failed to kill old instance: %v"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotPIDWriteFail     = "Failed to write PID file: %v"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderTransition         = "[TRANSITION] Switching from %s to %s mode."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Lavalink Node ---
	MsgLavalinkConnecting  = "Connecting to node %s at %s..."
	MsgLavalinkConnected   = "Node %s is ready."
	MsgLavalinkConnectFail = "Failed to connect to node %s: %v"
	MsgLavalinkClosing     = "Closing node sessions..."

	// --- Music System ---
	MsgMusicPlayerCreated   = "Created player for guild %s in channel %s"
	MsgMusicPlayerDestroyed = "Destroyed player for guild %s"
	MsgMusicTrackStart      = "Guild %s: started `%s`"
	MsgMusicTrackEnd        = "Guild %s: track ended (%s)"
	MsgMusicTrackException  = "Guild %s: track exception: %v"
	MsgMusicTrackStuck      = "Guild %s: track stuck after %s"
	MsgMusicNotifyFail      = "Failed to send player notification: %v"
	MsgMusicAutoPlaying     = "Playing `%s`."
	MsgMusicSettingsFail    = "Failed to load music settings for guild %s: %v"

	MsgMusicJoined                  = "Connected to %s."
	MsgMusicLeft                    = "Disconnected from %s."
	MsgMusicLastHumanLeft           = "Disconnected from %s because everyone left."
	MsgMusicSourcePositionConflict  = "The `source` and `position` options are mutually exclusive."
	MsgMusicPlaylistEmpty           = "The playlist is empty."
	MsgMusicPlaylistExhausted       = "The playlist is exhausted. Use `/music play position:1` to play from the start."
	MsgMusicStartingFrom            = "Starting playback from position `%d`."
	MsgMusicAddedTrack              = "Added `%s` to the playlist."
	MsgMusicAddedTracks             = "Added `%d` tracks to the playlist."
	MsgMusicNotPlaying              = "I am not playing anything."
	MsgMusicAlreadyPaused           = "Playback is already paused."
	MsgMusicNotPaused               = "Playback is not paused."
	MsgMusicPaused                  = "Paused playback of `%s`."
	MsgMusicResumed                 = "Resumed playback of `%s`."
	MsgMusicStopped                 = "Stopped playback of `%s`."
	MsgMusicSkipped                 = "Skipped playback of `%s`."
	MsgMusicRemoved                 = "Removed `%s` from the playlist."
	MsgMusicPositionOutOfRange      = "You must specify a position within the playlist range (max: `%d`)."
	MsgMusicClearConfirm            = "Are you sure you want to remove `%d` track(s) from the playlist?"
	MsgMusicCleared                 = "Removed `%d` track(s) from the playlist."
	MsgMusicShuffled                = "Shuffled `%d` track(s)."
	MsgMusicRepeatOff               = "Repeating is now disabled."
	MsgMusicRepeatAll               = "Playlist repeating enabled."
	MsgMusicRepeatTrack             = "Single track repeating enabled."
	MsgMusicVolumeSet               = "Volume set to `%d%%`."
	MsgMusicSeeked                  = "Jumped to `%s` in `%s`."
	MsgMusicSeekNotSeekable         = "The current track cannot be seeked."
	MsgMusicSeekInvalid             = "Invalid position. Use formats like `1m30s`, `90s` or `02:15`."
	MsgMusicPlaylistPromptContained = "You seem to have requested a playlist containing `%d` tracks. Would you like to add them all?"
	MsgMusicChoiceAddAll            = "Add all tracks"
	MsgMusicChoiceAddFirst          = "Add first track"
	MsgMusicSearchPrompt            = "I found the following tracks for your search. Please pick one."
	MsgMusicSearchNoResults         = "The search returned no results."
	MsgMusicURLNoResults            = "I could not find any usable music under that URL."

	// --- Banner System ---
	MsgBannerSweepFail     = "Failed to query expired rotations: %v"
	MsgBannerRotated       = "Rotated banner for guild %s"
	MsgBannerRotateFail    = "Failed to rotate banner for guild %s: %v"
	MsgBannerAutoDisabled  = "Disabled rotation for guild %s: no banners left"
	MsgBannerImageGoneLog  = "Banner %s for guild %s no longer exists, removing"
	MsgBannerAddedLog      = "Added banner %s for guild %s"
	MsgBannerAdded         = "Added the image to the banner rotation."
	MsgBannerDuplicate     = "The image has already been added to the banner rotation."
	MsgBannerInvalidType   = "Invalid file type. Server banners must be `png`, `jpg` or `gif` image files."
	MsgBannerTooLarge      = "The image is larger than `10MB`. Please choose a smaller image."
	MsgBannerUnreachable   = "I could not fetch that image. Please check the URL."
	MsgBannerNoBanners     = "There are no banners in the rotation. Add one with `/banner add`."
	MsgBannerNotEligible   = "This server does not support banners."
	MsgBannerEnabled       = "Banner rotation is now enabled."
	MsgBannerDisabled      = "Banner rotation is now disabled."
	MsgBannerIntervalSet   = "Banner rotation interval set to `%d` minutes."
	MsgBannerIntervalMin   = "The rotation interval must be at least `%d` minutes."
	MsgBannerSet           = "The server banner has been updated."
	MsgBannerRotationOff   = "Banner rotation is currently disabled. Enable it with `/banner toggle state:on`."
	MsgBannerRemoved       = "Removed the banner from the rotation."
	MsgBannerImageGone     = "The image no longer exists and was removed from the rotation."
	MsgBannerInvalidChoice = "Invalid selection."

	// --- Session & Owner ---
	MsgSessionRebootCommanded   = "Reboot commanded by user %s (%s)"
	MsgSessionShutdownCommanded = "Shutdown commanded by user %s (%s)"
	MsgSessionRebooting         = "**Rebooting...**"
	MsgSessionShuttingDown      = "**Shutting down...**"
	MsgOwnerConfirmRestart      = "Are you sure you want to restart the bot?"
	MsgOwnerConfirmShutdown     = "Are you sure you want to shut the bot down?"
	MsgOwnerSynced              = "Re-registered `%d` command(s)."
	MsgOwnerSyncFail            = "Command registration failed: %v"
	MsgOwnerSQLExec             = "Query OK, `%d` row(s) affected."
	MsgOwnerSQLFail             = "Query failed: %v"
	MsgOwnerSQLNoRows           = "The query returned no rows."
	MsgOwnerVersionFail         = "Failed to read version information: %v"
	MsgOwnerLogsDisabled        = "File logging is disabled."
	MsgOwnerLogsFail            = "Failed to read the log file: %v"
	MsgOwnerLogsEmpty           = "The log file is empty."

	// --- Debug & Error Reporting ---
	MsgDebugCommandUsed    = "/%s used by %s (%s) in guild %s"
	MsgDebugUnhandled      = "An unhandled error has occured while running this command and has been reported to the developer."
	MsgDebugReportFail     = "Failed to deliver error report: %v"
	MsgDebugNoWebhook      = "No logging webhook is configured."
	MsgDebugPreviewSent    = "Sent a preview error report to the logging webhook."
	MsgDebugStatsSendFail  = "Failed to respond to stats command: %v"
)
