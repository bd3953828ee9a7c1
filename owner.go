package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
)

const sqlOutputLimit = 1900

func init() {
	adminPerm := discord.PermissionAdministrator

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "owner",
		Description:              "Owner-only maintenance utilities.",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts:                 []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "restart",
				Description: "Restart the bot process.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shutdown",
				Description: "Shut the bot down.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "sync",
				Description: "Force re-registration of all slash commands.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "sql",
				Description: "Run a raw SQL statement against the bot database.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "query",
						Description: "The SQL statement to run.",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "version",
				Description: "Show the running build.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "logs",
				Description: "Show the tail of the log file.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "lines",
						Description: "Number of lines to show.",
						MinValue:    intPtr(1),
						MaxValue:    intPtr(50),
					},
				},
			},
		},
	}, handleOwner)
}

func handleOwner(event *events.ApplicationCommandInteractionCreate) {
	if GlobalConfig == nil || !GlobalConfig.IsOwner(event.User().ID) {
		RespondCommandError(event, &Failure{Message: MsgFailOwnerOnly})
		return
	}
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	var err error
	switch *data.SubCommandName {
	case "restart":
		err = ownerRestart(event)
	case "shutdown":
		err = ownerShutdown(event)
	case "sync":
		err = ownerSync(event)
	case "sql":
		err = ownerSQL(event)
	case "version":
		err = ownerVersion(event)
	case "logs":
		err = ownerLogs(event)
	}
	if err != nil {
		RespondCommandError(event, err)
	}
}

// ownerRestart asks for confirmation, then raises SIGTERM against the own
// process with RestartRequested set so the shutdown path re-execs the binary.
func ownerRestart(event *events.ApplicationCommandInteractionCreate) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}
	prompt := NewInteractionPrompt(event)
	if err := prompt.Confirm(AppContext, MsgOwnerConfirmRestart); err != nil {
		return err
	}

	LogWarn(MsgSessionRebootCommanded, event.User().Username, event.User().ID)
	_ = EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), MessageEmbed(MsgSessionRebooting))

	RestartRequested = true
	time.Sleep(1500 * time.Millisecond)
	return syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

func ownerShutdown(event *events.ApplicationCommandInteractionCreate) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}
	prompt := NewInteractionPrompt(event)
	if err := prompt.Confirm(AppContext, MsgOwnerConfirmShutdown); err != nil {
		return err
	}

	LogWarn(MsgSessionShutdownCommanded, event.User().Username, event.User().ID)
	_ = EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), MessageEmbed(MsgSessionShuttingDown))

	time.Sleep(1 * time.Second)
	return syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

// ownerSync clears the stored command hash so RegisterCommands pushes the
// full set again even when nothing changed.
func ownerSync(event *events.ApplicationCommandInteractionCreate) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	_ = SetBotConfig(AppContext, "last_cmd_hash", "")
	if err := RegisterCommands(event.Client(), GlobalConfig.GuildID, false); err != nil {
		return Failuref(MsgOwnerSyncFail, err)
	}
	return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), SuccessEmbed(MsgOwnerSynced, len(commands)))
}

func ownerSQL(event *events.ApplicationCommandInteractionCreate) error {
	query := strings.TrimSpace(event.SlashCommandInteractionData().String("query"))
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	var embed discord.Embed
	if strings.HasPrefix(strings.ToLower(query), "select") {
		output, err := runSQLQuery(query)
		if err != nil {
			return Failuref(MsgOwnerSQLFail, err)
		}
		if output == "" {
			embed = MessageEmbed(MsgOwnerSQLNoRows)
		} else {
			embed = MessageEmbed("```\n%s\n```", Truncate(output, sqlOutputLimit))
		}
	} else {
		result, err := DB.ExecContext(AppContext, query)
		if err != nil {
			return Failuref(MsgOwnerSQLFail, err)
		}
		affected, _ := result.RowsAffected()
		embed = SuccessEmbed(MsgOwnerSQLExec, affected)
	}
	return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), embed)
}

// runSQLQuery renders a SELECT result as tab-separated rows with a header.
func runSQLQuery(query string) (string, error) {
	rows, err := DB.QueryContext(AppContext, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	count := 0
	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return "", err
		}
		if count == 0 {
			out.WriteString(strings.Join(columns, "\t"))
			out.WriteString("\n")
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprintf("%v", *(v.(*any)))
		}
		out.WriteString(strings.Join(cells, "\t"))
		out.WriteString("\n")
		count++
		if out.Len() > sqlOutputLimit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if count == 0 {
		return "", nil
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// ownerLogs renders the tail of the log file, when file logging is active.
func ownerLogs(event *events.ApplicationCommandInteractionCreate) error {
	path := GetLogPath()
	if path == "" {
		return &Failure{Message: MsgOwnerLogsDisabled}
	}

	count, ok := event.SlashCommandInteractionData().OptInt("lines")
	if !ok {
		count = 20
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Failuref(MsgOwnerLogsFail, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}
	output := strings.Join(lines, "\n")
	if strings.TrimSpace(output) == "" {
		return &Failure{Message: MsgOwnerLogsEmpty}
	}
	return RespondEmbed(event, MessageEmbed("```\n%s\n```", Truncate(output, sqlOutputLimit)), true)
}

func ownerVersion(event *events.ApplicationCommandInteractionCreate) error {
	commit, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return Failuref(MsgOwnerVersionFail, err)
	}
	date, _ := exec.Command("git", "log", "-1", "--format=%cs").Output()

	embed := discord.Embed{
		Title: GetProjectName(),
		Color: ColorMessage,
		Fields: []discord.EmbedField{
			{Name: "Commit", Value: fmt.Sprintf("`%s`", strings.TrimSpace(string(commit)))},
			{Name: "Committed", Value: strings.TrimSpace(string(date))},
			{Name: "Runtime", Value: runtime.Version()},
		},
	}
	return RespondEmbed(event, embed, true)
}
