package adminbot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"likevault/internal/logging"
	"likevault/internal/store"
	"likevault/internal/telegram"
)

// Summary is the runtime snapshot shown by /status.
type Summary struct {
	Running     bool
	DiskUsage   int64
	DiskBudget  int64
	QueueLength int
	Workers     int
	Active      int
	LastFetch   time.Time
	NextFetch   time.Time
}

// Source supplies the data behind the commands.
type Source interface {
	Summary(ctx context.Context) (Summary, error)
	Stats(ctx context.Context, period store.Period) (store.Stats, error)
}

// Bot listens for admin commands.
type Bot struct {
	api     telegram.Bot
	adminID int64
	source  Source
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New builds a command listener for adminID.
func New(api telegram.Bot, adminID int64, source Source, logger *slog.Logger) (*Bot, error) {
	if api == nil || source == nil {
		return nil, errors.New("adminbot: bot and source are required")
	}
	if adminID == 0 {
		return nil, errors.New("adminbot: admin id is required")
	}
	return &Bot{
		api:     api,
		adminID: adminID,
		source:  source,
		logger:  logging.NewComponentLogger(logger, "adminbot"),
		now:     time.Now,
	}, nil
}

// Start begins long polling.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("adminbot already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(cfg)

	b.cancel = cancel
	b.running = true
	b.wg.Add(1)
	go b.loop(runCtx, updates)
	b.logger.Info("admin command listener started", logging.Int64("admin_id", b.adminID))
	return nil
}

// Stop ends long polling and waits for the handler loop to exit.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
	b.logger.Info("admin command listener stopped")
}

func (b *Bot) loop(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if msg.From == nil || msg.From.ID != b.adminID {
		b.logger.Debug("ignored command from non-admin", logging.String("command", msg.Command()))
		b.reply(msg.Chat.ID, accessDenied, nil)
		return
	}
	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, helpText, nil)
	case "status":
		summary, err := b.source.Summary(ctx)
		if err != nil {
			b.fail(msg.Chat.ID, "status", err)
			return
		}
		b.reply(msg.Chat.ID, formatStatus(summary, b.now()), nil)
	case "stats":
		keyboard := periodKeyboard()
		b.reply(msg.Chat.ID, "📊 Choose a statistics period:", &keyboard)
	default:
		b.reply(msg.Chat.ID, helpText, nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer b.answer(query.ID)
	if query.From == nil || query.From.ID != b.adminID {
		return
	}
	period, ok := parseCallback(query.Data)
	if !ok || query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID, messageID := query.Message.Chat.ID, query.Message.MessageID

	text := ""
	stats, err := b.source.Stats(ctx, period)
	if err != nil {
		logging.WarnWithContext(b.logger, "stats lookup failed", "admin_stats_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the admin sees an error reply"),
			logging.String(logging.FieldErrorHint, "check the state database"),
		)
		text = "❌ Failed to load statistics: " + escape(err.Error())
	} else {
		text = formatStats(stats)
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	keyboard := periodKeyboard()
	edit.ReplyMarkup = &keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.logSendFailure(err)
	}
}

func (b *Bot) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logSendFailure(err)
	}
}

func (b *Bot) answer(queryID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, "")); err != nil {
		b.logger.Debug("callback answer failed", logging.Error(err))
	}
}

func (b *Bot) fail(chatID int64, command string, err error) {
	logging.WarnWithContext(b.logger, "admin command failed", "admin_command_failed",
		logging.String("command", command),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the admin sees an error reply"),
		logging.String(logging.FieldErrorHint, "check the daemon log for the underlying failure"),
	)
	b.reply(chatID, "❌ Error: "+escape(err.Error()), nil)
}

func (b *Bot) logSendFailure(err error) {
	logging.WarnWithContext(b.logger, "admin reply failed", "admin_reply_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "the admin did not receive a reply"),
		logging.String(logging.FieldErrorHint, "check bot token and that the admin started a chat with the bot"),
	)
}
