package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const feishuCardTitle = "WaveBot"

// FeishuChannel exchanges messages with Feishu/Lark over the open platform:
// a websocket client for inbound events, the REST API for outbound cards.
type FeishuChannel struct {
	BaseChannel
	Config   *config.FeishuConfig
	client   *lark.Client
	wsClient *larkws.Client
}

// NewFeishuChannel wires a Feishu connection onto the bus.
func NewFeishuChannel(cfg *config.FeishuConfig, messageBus *bus.MessageBus) *FeishuChannel {
	return &FeishuChannel{
		BaseChannel: BaseChannel{
			Config:    cfg,
			Bus:       messageBus,
			AllowFrom: cfg.AllowFrom,
		},
		Config: cfg,
	}
}

func (c *FeishuChannel) Name() string {
	return "feishu"
}

// Start connects the websocket event stream. Without credentials it is a
// no-op so a partially filled config does not kill the bot.
func (c *FeishuChannel) Start() error {
	if !c.Config.Enabled || c.Config.AppID == "" || c.Config.AppSecret == "" {
		return nil
	}

	c.client = lark.NewClient(c.Config.AppID, c.Config.AppSecret)

	handler := larkdispatcher.NewEventDispatcher(c.Config.VerificationToken, c.Config.EncryptKey).
		OnP2MessageReceiveV1(c.onMessage)

	c.wsClient = larkws.NewClient(
		c.Config.AppID,
		c.Config.AppSecret,
		larkws.WithEventHandler(handler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	go func() {
		if err := c.wsClient.Start(context.Background()); err != nil {
			zap.S().Errorf("Feishu websocket stopped: %v", err)
		}
	}()

	zap.S().Info("Feishu channel started")
	return nil
}

func (c *FeishuChannel) onMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	text := feishuText(*event.Event.Message.Content)
	if text == "" {
		return nil
	}

	senderID := *event.Event.Sender.SenderId.OpenId
	if !c.IsAllowed(senderID) {
		zap.S().Warnf("Feishu message from unauthorized user %s", senderID)
		return nil
	}

	c.Bus.PublishInbound(bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: senderID,
		ChatID:   *event.Event.Message.ChatId,
		Content:  text,
	})
	return nil
}

// feishuText extracts the command text from an event payload. Text messages
// carry {"text": "..."}; richer payloads fall through as raw JSON so the
// engine can at least report what it cannot parse. Image attachments need a
// resource download round-trip the bot does not make; image-to-video users
// paste URLs instead.
func feishuText(content string) string {
	var msgContent struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &msgContent); err == nil && msgContent.Text != "" {
		return msgContent.Text
	}
	zap.S().Debugf("Unsupported Feishu message payload: %s", content)
	return strings.TrimSpace(content)
}

func (c *FeishuChannel) Stop() error {
	// The websocket client stops with the process; the SDK exposes no
	// explicit shutdown on this version.
	return nil
}

// Send delivers a reply as an interactive card. Generated media is linked
// from the card body, grouped by kind.
func (c *FeishuChannel) Send(msg bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("feishu client not initialized")
	}

	body := buildFeishuBody(msg)
	if body == "" {
		return nil
	}

	// Group chat IDs start with "oc_"; everything else is a direct open ID.
	receiveIDType := larkim.ReceiveIdTypeOpenId
	if strings.HasPrefix(msg.ChatID, "oc_") {
		receiveIDType = larkim.ReceiveIdTypeChatId
	}

	contentJSON, _ := json.Marshal(feishuCard(body))
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType(larkim.MsgTypeInteractive).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.client.Im.Message.Create(context.Background(), req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("feishu error: %d %s", resp.Code, resp.Msg)
	}
	return nil
}

// feishuCard wraps markdown body text in the interactive-card envelope.
func feishuCard(body string) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"header": map[string]interface{}{
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": feishuCardTitle,
			},
			"template": "blue",
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag": "div",
				"text": map[string]interface{}{
					"tag":     "lark_md",
					"content": body,
				},
			},
		},
	}
}

// buildFeishuBody renders the text plus links to all generated outputs in
// lark_md form.
func buildFeishuBody(msg bus.OutboundMessage) string {
	parts := []string{}
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}

	out := wavespeed.Classify("", msg.Media)
	if out.Video != "" {
		parts = append(parts, fmt.Sprintf("🎬 [video](%s)", out.Video))
	}
	for i, img := range out.Images {
		parts = append(parts, fmt.Sprintf("🖼️ [image %d](%s)", i+1, img))
	}
	if out.Audio != "" {
		parts = append(parts, fmt.Sprintf("🔊 [audio](%s)", out.Audio))
	}
	if out.Text != "" {
		parts = append(parts, out.Text)
	}

	return strings.Join(parts, "\n")
}
