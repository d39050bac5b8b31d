package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/h1v3-io/seatwatch/internal/connector"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
	// Endpoint overrides the Bot API URL pattern (tgbotapi.APIEndpoint).
	Endpoint string
}

// Connector delivers notices to Telegram chats and answers chat commands.
type Connector struct {
	bot     *tgbotapi.BotAPI
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

var _ connector.Connector = (*Connector)(nil)

// New authorizes the bot. handler may be nil for send-only use.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start long-polls for updates until ctx is cancelled. Without a handler
// it only waits.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	if c.handler == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.bot.GetUpdatesChan(u)
	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			c.handleUpdate(ctx, update)
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a Markdown message, falling back to plain text if
// Telegram rejects the HTML.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", msg.ChatID, err)
	}
	if strings.TrimSpace(msg.Content) == "" {
		c.logger.Warn("skipping empty message", "chat_id", msg.ChatID)
		return nil
	}

	tgMsg := tgbotapi.NewMessage(chatID, MarkdownToTelegramHTML(msg.Content))
	tgMsg.ParseMode = tgbotapi.ModeHTML
	tgMsg.DisableWebPagePreview = true

	if _, err := c.bot.Send(tgMsg); err != nil {
		c.logger.Warn("HTML send failed, falling back to plain text",
			"chat_id", msg.ChatID,
			"error", err,
		)
		tgMsg.Text = StripMarkdown(msg.Content)
		tgMsg.ParseMode = ""
		if _, err := c.bot.Send(tgMsg); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	in, ok := inboundFrom(update, c.config.AllowFrom)
	if !ok {
		if m := update.Message; m != nil && m.From != nil {
			c.logger.Debug("update ignored", "user_id", m.From.ID)
		}
		return
	}
	reply, err := c.handler(ctx, in)
	if err != nil {
		c.logger.Error("inbound handler error", "chat_id", in.ChatID, "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := c.Send(ctx, connector.OutboundMessage{ChatID: in.ChatID, Content: reply}); err != nil {
		c.logger.Error("reply failed", "chat_id", in.ChatID, "error", err)
	}
}

// inboundFrom extracts a command or text message from update, applying
// the allow list.
func inboundFrom(update tgbotapi.Update, allow []int64) (connector.InboundMessage, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return connector.InboundMessage{}, false
	}
	if len(allow) > 0 && !slices.Contains(allow, msg.From.ID) {
		return connector.InboundMessage{}, false
	}

	text := strings.TrimSpace(msg.Text)
	if msg.IsCommand() {
		text = "/" + msg.Command()
		if args := msg.CommandArguments(); args != "" {
			text += " " + args
		}
	}
	if text == "" {
		return connector.InboundMessage{}, false
	}
	return connector.InboundMessage{
		Channel:  "telegram",
		SenderID: strconv.FormatInt(msg.From.ID, 10),
		ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
		Content:  text,
	}, true
}
