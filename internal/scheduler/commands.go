package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/metrics"
	"github.com/hamed0406/hostwatch/internal/notify"
)

// CommandKind enumerates the bot commands. The set is closed.
type CommandKind int

const (
	CommandStop CommandKind = iota + 1
	CommandStopAll
	CommandSleep
	CommandSleepAll
)

func (k CommandKind) String() string {
	switch k {
	case CommandStop:
		return "stop"
	case CommandStopAll:
		return "stopall"
	case CommandSleep:
		return "sleep"
	case CommandSleepAll:
		return "sleepall"
	default:
		return "unknown"
	}
}

// Command is a parsed bot command. Target is set for Stop and Sleep,
// Duration for Sleep and SleepAll.
type Command struct {
	Kind     CommandKind
	Target   string
	Duration time.Duration
	ChatID   int64
}

var ErrNotACommand = errors.New("not a command")

// BotCommands is the list registered with setMyCommands.
var BotCommands = []notify.BotCommand{
	{Command: "stop", Description: "stop probing one target: /stop <address>"},
	{Command: "stopall", Description: "stop probing every target"},
	{Command: "sleep", Description: "pause one target: /sleep <address> <duration>"},
	{Command: "sleepall", Description: "pause every target: /sleepall <duration>"},
}

// ParseCommand parses "/stop <address>", "/stopall", "/sleep <address>
// <duration>" and "/sleepall <duration>". A "@botname" suffix on the
// command word is ignored. Durations are Go durations or whole seconds.
func ParseCommand(text string) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, ErrNotACommand
	}
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := fields[1:]

	var cmd Command
	switch strings.ToLower(word) {
	case "stop":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: /stop <address>")
		}
		cmd = Command{Kind: CommandStop, Target: args[0]}
	case "stopall":
		cmd = Command{Kind: CommandStopAll}
	case "sleep":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("usage: /sleep <address> <duration>")
		}
		d, err := parseDuration(args[1])
		if err != nil {
			return Command{}, err
		}
		cmd = Command{Kind: CommandSleep, Target: args[0], Duration: d}
	case "sleepall":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: /sleepall <duration>")
		}
		d, err := parseDuration(args[0])
		if err != nil {
			return Command{}, err
		}
		cmd = Command{Kind: CommandSleepAll, Duration: d}
	default:
		return Command{}, fmt.Errorf("unknown command /%s", word)
	}
	return cmd, nil
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", s)
	}
	return d, nil
}

// UpdateSource is the inbound side of the messaging channel.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notify.Update, error)
}

// CommandListener long-polls for bot commands from authorized chats and
// hands them to the monitors they address.
type CommandListener struct {
	logger      *zap.Logger
	source      UpdateSource
	allowed     map[int64]bool
	pollTimeout time.Duration
	errBackoff  time.Duration
	metrics     *metrics.Registry
}

func NewCommandListener(logger *zap.Logger, src UpdateSource, allowedChats []int64, pollTimeout time.Duration, m *metrics.Registry) *CommandListener {
	allowed := make(map[int64]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}
	return &CommandListener{
		logger:      logger,
		source:      src,
		allowed:     allowed,
		pollTimeout: pollTimeout,
		errBackoff:  5 * time.Second,
		metrics:     m,
	}
}

// Run polls until ctx is cancelled. routes maps target address to the
// monitor's command channel.
func (l *CommandListener) Run(ctx context.Context, routes map[string]chan<- Command) error {
	var offset int64
	for {
		updates, err := l.source.GetUpdates(ctx, offset, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("command_poll_error", zap.Error(err), zap.Duration("retry_in", l.errBackoff))
			t := time.NewTimer(l.errBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			l.handle(u, routes)
		}
	}
}

func (l *CommandListener) handle(u notify.Update, routes map[string]chan<- Command) {
	msg := u.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if !l.allowed[msg.Chat.ID] {
		l.logger.Warn("command_rejected_unauthorized", zap.Int64("chat_id", msg.Chat.ID))
		return
	}
	cmd, err := ParseCommand(msg.Text)
	if err != nil {
		l.logger.Warn("command_invalid", zap.Int64("chat_id", msg.Chat.ID), zap.String("text", msg.Text), zap.Error(err))
		return
	}
	cmd.ChatID = msg.Chat.ID
	l.Dispatch(cmd, routes)
}

// Dispatch delivers cmd without blocking. A monitor whose queue is full
// (for example one blocked in alert delivery) loses the command.
func (l *CommandListener) Dispatch(cmd Command, routes map[string]chan<- Command) {
	var targets []string
	switch cmd.Kind {
	case CommandStop, CommandSleep:
		if _, ok := routes[cmd.Target]; !ok {
			l.logger.Warn("command_unknown_target", zap.Stringer("kind", cmd.Kind), zap.String("target", cmd.Target))
			return
		}
		targets = []string{cmd.Target}
	case CommandStopAll, CommandSleepAll:
		for addr := range routes {
			targets = append(targets, addr)
		}
	default:
		l.logger.Warn("command_unknown", zap.Stringer("kind", cmd.Kind))
		return
	}

	l.metrics.Inc(metrics.CommandsTotal, "kind", cmd.Kind.String())
	for _, addr := range targets {
		select {
		case routes[addr] <- cmd:
			l.logger.Info("command_dispatched", zap.Stringer("kind", cmd.Kind), zap.String("target", addr), zap.Int64("chat_id", cmd.ChatID))
		default:
			l.logger.Warn("command_dropped_queue_full", zap.Stringer("kind", cmd.Kind), zap.String("target", addr))
		}
	}
}
