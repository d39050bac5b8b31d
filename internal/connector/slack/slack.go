package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/h1v3-io/seatwatch/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken  string   // xoxb-... Bot User OAuth Token
	AppToken  string   // xapp-... App-Level Token; enables Socket Mode commands
	Channel   string   // default channel for notices
	AllowFrom []string // user IDs allowed to run commands (empty = all)
	APIURL    string   // overrides the Web API base URL, with trailing slash
}

// Connector posts notices to Slack and, with an app token, answers
// commands over Socket Mode.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

var _ connector.Connector = (*Connector)(nil)

// New authenticates the bot. handler may be nil for send-only use.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []slack.Option
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	api := slack.New(cfg.BotToken, opts...)

	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", auth.User, "team", auth.Team)

	c := &Connector{
		api:     api,
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   auth.UserID,
	}
	if cfg.AppToken != "" && handler != nil {
		c.socket = socketmode.New(api)
	}
	return c, nil
}

func (c *Connector) Name() string { return "slack" }

// Start runs Socket Mode until ctx is cancelled. Without Socket Mode it
// only waits.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	if c.socket == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	go c.handleEvents(ctx)
	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts a message. ChatID is "channel" or "channel:thread_ts"; empty
// uses the configured channel.
func (c *Connector) Send(ctx context.Context, msg connector.OutboundMessage) error {
	channel, thread := splitChatID(msg.ChatID)
	if channel == "" {
		channel = c.config.Channel
	}
	if channel == "" {
		return fmt.Errorf("slack: no channel for message")
	}
	opts := []slack.MsgOption{slack.MsgOptionText(MarkdownToMrkdwn(msg.Content), false)}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func splitChatID(id string) (channel, thread string) {
	channel, thread, _ = strings.Cut(id, ":")
	return channel, thread
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				ev, ok := event.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.socket.Ack(*event.Request)
				if in, ok := c.fromEventsAPI(ev); ok {
					c.dispatch(ctx, in)
				}
			case socketmode.EventTypeSlashCommand:
				cmd, ok := event.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				c.socket.Ack(*event.Request)
				if in, ok := c.fromSlashCommand(cmd); ok {
					c.dispatch(ctx, in)
				}
			}
		}
	}
}

func (c *Connector) dispatch(ctx context.Context, in connector.InboundMessage) {
	reply, err := c.handler(ctx, in)
	if err != nil {
		c.logger.Error("slack inbound handler error", "chat", in.ChatID, "user", in.SenderID, "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := c.Send(ctx, connector.OutboundMessage{ChatID: in.ChatID, Content: reply}); err != nil {
		c.logger.Error("slack reply failed", "chat", in.ChatID, "error", err)
	}
}

func (c *Connector) fromEventsAPI(ev slackevents.EventsAPIEvent) (connector.InboundMessage, bool) {
	var user, channel, thread, text string
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Skip bots, our own messages and edits/deletes.
		if inner.BotID != "" || inner.User == "" || inner.User == c.botID || inner.SubType != "" {
			return connector.InboundMessage{}, false
		}
		user, channel, thread, text = inner.User, inner.Channel, inner.ThreadTimeStamp, inner.Text
	case *slackevents.AppMentionEvent:
		if inner.User == c.botID {
			return connector.InboundMessage{}, false
		}
		user, channel, thread, text = inner.User, inner.Channel, inner.ThreadTimeStamp, StripMention(inner.Text, c.botID)
	default:
		return connector.InboundMessage{}, false
	}
	return c.inbound(user, channel, thread, text)
}

// fromSlashCommand maps "/seatwatch activate evt_1 2" to "/activate evt_1 2".
func (c *Connector) fromSlashCommand(cmd slack.SlashCommand) (connector.InboundMessage, bool) {
	text := cmd.Text
	if strings.TrimSpace(text) == "" {
		text = "help"
	}
	return c.inbound(cmd.UserID, cmd.ChannelID, "", text)
}

func (c *Connector) inbound(user, channel, thread, text string) (connector.InboundMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" || !c.isAllowedUser(user) {
		return connector.InboundMessage{}, false
	}
	if !strings.HasPrefix(text, "/") {
		text = "/" + text
	}
	chatID := channel
	if thread != "" {
		chatID = channel + ":" + thread
	}
	return connector.InboundMessage{Channel: "slack", SenderID: user, ChatID: chatID, Content: text}, true
}

func (c *Connector) isAllowedUser(user string) bool {
	return len(c.config.AllowFrom) == 0 || slices.Contains(c.config.AllowFrom, user)
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	return strings.TrimSpace(strings.Replace(text, "<@"+botID+">", "", 1))
}
