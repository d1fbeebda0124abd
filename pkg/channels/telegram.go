package channels

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

// TelegramChannel runs the bot over Telegram long polling. It is the one
// channel that feeds photo attachments into generations, because the bot API
// hands out direct file URLs without extra round-trips.
type TelegramChannel struct {
	BaseChannel
	Config *config.TelegramConfig
	bot    *tgbotapi.BotAPI
}

// NewTelegramChannel wires a Telegram connection onto the bus.
func NewTelegramChannel(cfg *config.TelegramConfig, messageBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			Config:    cfg,
			Bus:       messageBus,
			AllowFrom: cfg.AllowFrom,
		},
		Config: cfg,
	}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

func (c *TelegramChannel) Start() error {
	if !c.Config.Enabled || c.Config.Token == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(c.Config.Token)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	c.bot = bot
	zap.S().Infof("Telegram bot authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	go c.receiveUpdates(bot.GetUpdatesChan(u))

	return nil
}

// receiveUpdates drains the long-poll channel until Stop closes it.
func (c *TelegramChannel) receiveUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.Message != nil {
			c.handleUpdate(update)
		}
	}
}

func (c *TelegramChannel) Stop() error {
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

// Send delivers a reply. Generated media goes out as native photo, video or
// audio messages; anything unrecognized falls back to a document.
func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if c.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %s", msg.ChatID)
	}

	if msg.Content != "" {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, msg.Content)); err != nil {
			return err
		}
	}

	for _, item := range msg.Media {
		if err := c.sendMedia(chatID, item); err != nil {
			zap.S().Warnf("Failed to send media %s: %v", item, err)
		}
	}
	return nil
}

func (c *TelegramChannel) sendMedia(chatID int64, source string) error {
	var file tgbotapi.RequestFileData
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		file = tgbotapi.FileURL(source)
	} else {
		file = tgbotapi.FilePath(source)
	}

	out := wavespeed.Classify("", []string{source})
	var media tgbotapi.Chattable
	switch {
	case out.Video != "":
		media = tgbotapi.NewVideo(chatID, file)
	case len(out.Images) > 0:
		media = tgbotapi.NewPhoto(chatID, file)
	case out.Audio != "":
		media = tgbotapi.NewAudio(chatID, file)
	default:
		media = tgbotapi.NewDocument(chatID, file)
	}

	_, err := c.bot.Send(media)
	return err
}

// senderKey renders "id" or "id|username" so allow lists can match either.
func senderKey(from *tgbotapi.User) string {
	id := strconv.FormatInt(from.ID, 10)
	if from.UserName != "" {
		return id + "|" + from.UserName
	}
	return id
}

// attachmentURLs resolves attached photos and documents to direct file URLs
// the upload endpoint can ingest. Photos arrive in several sizes; the last
// entry is the largest.
func (c *TelegramChannel) attachmentURLs(msg *tgbotapi.Message) []string {
	var fileID string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		fileID = msg.Document.FileID
	default:
		return nil
	}

	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		zap.S().Warnf("Failed to resolve Telegram attachment: %v", err)
		return nil
	}
	return []string{url}
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message

	// A caption doubles as the prompt when the message is a bare photo.
	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}

	if msg.IsCommand() && msg.Command() == "start" {
		c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID,
			"👋 Hi! I'm wavebot.\n\n"+
				"/image <prompt> generates an image, /video <prompt> a clip.\n"+
				"Send a photo first to animate or upscale it. /models lists the catalog."))
		return
	}

	media := c.attachmentURLs(msg)
	if content == "" && len(media) == 0 {
		return
	}

	metadata := map[string]interface{}{
		"message_id": msg.MessageID,
		"username":   msg.From.UserName,
		"first_name": msg.From.FirstName,
	}
	c.HandleMessage(c.Name(), senderKey(msg.From), strconv.FormatInt(msg.Chat.ID, 10), content, media, metadata)
}
