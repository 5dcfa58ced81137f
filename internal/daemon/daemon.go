// Package daemon is the long-running broker: it owns the unix socket
// hook clients connect to, the Telegram long poll, and the SQLite
// state tying the two together.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	tele "gopkg.in/telebot.v3"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/logger"
	"github.com/codelatch/codelatch/internal/redact"
	"github.com/codelatch/codelatch/internal/store"
	"github.com/codelatch/codelatch/internal/tmux"
)

const (
	peekContextLines = 30
	logLines         = 200
)

// telegram is the slice of the chat client the daemon uses. Tests
// substitute a recording fake.
type telegram interface {
	ChatID() int64
	SendMessage(ctx context.Context, text string) (int64, error)
	SendMarkdown(ctx context.Context, text string) (int64, error)
	SendMarkdownWithMarkup(ctx context.Context, text string, markup *tele.ReplyMarkup) (int64, error)
	SendDocument(ctx context.Context, fileName string, data []byte, caption string) (int64, error)
	SendPermissionMessage(ctx context.Context, sessionName, command, cwd, requestID string, timeoutSeconds int64) (int64, error)
	EditMessage(ctx context.Context, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	GetUpdates(ctx context.Context, offset int64) ([]chat.Update, error)
}

// panes abstracts the tmux subprocess calls so handler logic is
// testable without a terminal.
type panes interface {
	CaptureContext(pane string, lines int) (string, bool)
	SendInterrupt(pane string) bool
	InjectReply(pane, text string) bool
	DetectRunningCommand(pane string) (string, bool)
}

type tmuxPanes struct{}

func (tmuxPanes) CaptureContext(pane string, lines int) (string, bool) {
	return tmux.CaptureContext(pane, lines)
}
func (tmuxPanes) SendInterrupt(pane string) bool      { return tmux.SendInterrupt(pane) }
func (tmuxPanes) InjectReply(pane, text string) bool  { return tmux.InjectReply(pane, text) }
func (tmuxPanes) DetectRunningCommand(pane string) (string, bool) {
	return tmux.DetectRunningCommand(pane)
}

// Daemon carries the shared state of all broker tasks.
type Daemon struct {
	cfg      config.Config
	store    *store.Store
	tg       telegram
	panes    panes
	redactor *redact.Redactor
	waiters  *waiterTable

	// gitDiff returns (stdout, stderr, ok) for `git diff` in cwd.
	gitDiff func(cwd string) (string, string, bool)
}

// New assembles a daemon around an opened store and a connected chat
// client.
func New(cfg config.Config, st *store.Store, tg telegram) *Daemon {
	return &Daemon{
		cfg:      cfg,
		store:    st,
		tg:       tg,
		panes:    tmuxPanes{},
		redactor: redact.New(),
		waiters:  newWaiterTable(),
		gitDiff:  runGitDiff,
	}
}

func runGitDiff(cwd string) (string, string, bool) {
	cmd := exec.Command("git", "-C", cwd, "diff", "--no-color")
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return tmux.NormalizeTerminalText(stdout.String()),
		tmux.NormalizeTerminalText(stderr.String()),
		err == nil
}

// Run starts the daemon and blocks until ctx is cancelled. Lifecycle
// order matters: singleton lock, pid file, socket, database, then the
// long poll and accept loop. Cleanup runs in reverse.
func Run(ctx context.Context, cfg config.Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("not configured: run `codelatch init` first")
	}

	lock, err := acquireSingletonLock()
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	pidPath := config.PidPath()
	if err := os.MkdirAll(filepath.Dir(pidPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath) //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	// The lock guarantees no live daemon owns a leftover socket.
	if _, err := os.Stat(cfg.SocketPath); err == nil {
		os.Remove(cfg.SocketPath) //nolint:errcheck
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	tg, err := chat.New(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		return err
	}

	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	defer os.Remove(cfg.SocketPath) //nolint:errcheck

	d := New(cfg, st, tg)
	logger.Info(fmt.Sprintf("daemon listening on %s", cfg.SocketPath))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.longPollLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(fmt.Sprintf("telegram long poll loop stopped: %v", err))
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close() //nolint:errcheck
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error(fmt.Sprintf("accept hook client: %v", err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.handleClient(ctx, conn); err != nil {
				logger.Error(fmt.Sprintf("failed to handle hook client: %v", err))
			}
		}()
	}

	wg.Wait()
	logger.Info("daemon stopped")
	return nil
}

func acquireSingletonLock() (*flock.Flock, error) {
	lockPath := config.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("daemon lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another codelatch daemon is already running")
	}
	return lock, nil
}

// longPollLoop consumes operator updates until ctx is cancelled. The
// offset only moves forward past processed updates, so a crash replays
// at most one batch.
func (d *Daemon) longPollLoop(ctx context.Context) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := d.tg.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, update := range updates {
			if update.CallbackQuery != nil {
				if err := d.handleCallbackQuery(ctx, update.CallbackQuery); err != nil {
					logger.Warn(fmt.Sprintf("failed processing callback query: %v", err))
				}
				continue
			}
			if update.Message != nil {
				if err := d.handleMessage(ctx, update.Message); err != nil {
					logger.Warn(fmt.Sprintf("failed processing telegram message: %v", err))
				}
			}
		}
		offset = chat.NextOffset(offset, updates)
	}
}
