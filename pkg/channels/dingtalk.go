package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dingtalkoauth2 "github.com/alibabacloud-go/dingtalk/oauth2_1_0"
	dingtalkrobot "github.com/alibabacloud-go/dingtalk/robot_1_0"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/logger"
)

// DingTalkChannel receives commands over the stream SDK websocket and sends
// replies through the robot REST API, which needs its own oauth token.
type DingTalkChannel struct {
	BaseChannel
	Config       *config.DingTalkConfig
	streamClient *client.StreamClient
	robotClient  *dingtalkrobot.Client
	oauthClient  *dingtalkoauth2.Client

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewDingTalkChannel(cfg *config.DingTalkConfig, messageBus *bus.MessageBus) *DingTalkChannel {
	return &DingTalkChannel{
		BaseChannel: BaseChannel{
			Config:    cfg,
			Bus:       messageBus,
			AllowFrom: cfg.AllowFrom,
		},
		Config: cfg,
	}
}

func (c *DingTalkChannel) Name() string {
	return "dingtalk"
}

func (c *DingTalkChannel) Start() error {
	if !c.Config.Enabled || c.Config.ClientID == "" || c.Config.ClientSecret == "" {
		return nil
	}

	if err := c.initAPIClients(); err != nil {
		return err
	}

	logger.SetLogger(logger.NewStdTestLogger())
	c.streamClient = client.NewStreamClient(
		client.WithAppCredential(client.NewAppCredentialConfig(c.Config.ClientID, c.Config.ClientSecret)),
	)
	c.streamClient.RegisterChatBotCallbackRouter(c.onChatReceive)

	// Start blocks while the websocket is up.
	go func() {
		if err := c.streamClient.Start(context.Background()); err != nil {
			zap.S().Errorf("DingTalk stream client stopped: %v", err)
		}
	}()

	zap.S().Info("DingTalk channel started")
	return nil
}

// initAPIClients builds the outbound REST clients. The openapi config is
// shared; each product line gets its own client.
func (c *DingTalkChannel) initAPIClients() error {
	apiConfig := &openapi.Config{
		Protocol: tea.String("https"),
		RegionId: tea.String("central"),
	}

	var err error
	if c.robotClient, err = dingtalkrobot.NewClient(apiConfig); err != nil {
		return fmt.Errorf("init dingtalk robot client: %v", err)
	}
	if c.oauthClient, err = dingtalkoauth2.NewClient(apiConfig); err != nil {
		return fmt.Errorf("init dingtalk oauth client: %v", err)
	}
	return nil
}

func (c *DingTalkChannel) Stop() error {
	if c.streamClient != nil {
		c.streamClient.Close()
	}
	return nil
}

// accessToken returns a cached robot token, refreshing it when it is within
// a minute of expiry.
func (c *DingTalkChannel) accessToken() (string, error) {
	c.tokenMu.RLock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		defer c.tokenMu.RUnlock()
		return c.token, nil
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	resp, err := c.oauthClient.GetAccessToken(&dingtalkoauth2.GetAccessTokenRequest{
		AppKey:    tea.String(c.Config.ClientID),
		AppSecret: tea.String(c.Config.ClientSecret),
	})
	if err != nil {
		return "", err
	}
	if resp.Body == nil || resp.Body.AccessToken == nil {
		return "", fmt.Errorf("dingtalk token response has no access token")
	}

	c.token = *resp.Body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(*resp.Body.ExpireIn-60) * time.Second)
	return c.token, nil
}

func (c *DingTalkChannel) onChatReceive(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	content := strings.TrimSpace(data.Text.Content)
	if content == "" {
		return nil, nil
	}

	sender := data.SenderStaffId
	if sender == "" {
		sender = data.SenderId
	}
	if sender == "" {
		zap.S().Warn("DingTalk message without a sender ID")
		return nil, nil
	}
	if !c.IsAllowed(sender) {
		zap.S().Warnf("DingTalk message from unauthorized user %s", sender)
		return nil, nil
	}

	// Replies to a group (conversation type "2") go to the conversation;
	// direct chats are addressed by the sender's staff ID.
	chatID := sender
	if data.ConversationType == "2" && data.ConversationId != "" {
		chatID = data.ConversationId
	}

	c.Bus.PublishInbound(bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: sender,
		ChatID:   chatID,
		Content:  content,
		Metadata: map[string]interface{}{
			"sender_name": data.SenderNick,
		},
	})
	return nil, nil
}

type dingTalkSampleTextParam struct {
	Content string `json:"content"`
}

type dingTalkSampleMarkdownParam struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (c *DingTalkChannel) Send(msg bus.OutboundMessage) error {
	token, err := c.accessToken()
	if err != nil {
		return fmt.Errorf("get dingtalk access token: %v", err)
	}

	msgKey, msgParam := buildDingTalkMessage(msg)
	if msgParam == "" {
		return nil
	}

	// Conversation IDs start with "cid"; sending those through the OTO API
	// fails with staffId.notExisted, so route them to the group endpoint.
	if strings.HasPrefix(msg.ChatID, "cid") {
		if err := c.sendGroup(token, msg.ChatID, msgKey, msgParam); err != nil {
			return fmt.Errorf("send dingtalk group message: %v", err)
		}
		return nil
	}

	if err := c.sendOTO(token, msg.ChatID, msgKey, msgParam); err != nil {
		return fmt.Errorf("send dingtalk message: %v", err)
	}
	return nil
}

// buildDingTalkMessage picks the message key and renders its parameter.
// Plain replies go out as sampleText; replies with generated media use
// sampleMarkdown so images render inline and videos link out.
func buildDingTalkMessage(msg bus.OutboundMessage) (msgKey, msgParam string) {
	if len(msg.Media) == 0 {
		if msg.Content == "" {
			return "", ""
		}
		data, _ := json.Marshal(dingTalkSampleTextParam{Content: msg.Content})
		return "sampleText", string(data)
	}

	var sb strings.Builder
	if msg.Content != "" {
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	out := wavespeed.Classify("", msg.Media)
	if out.Video != "" {
		sb.WriteString(fmt.Sprintf("[▶ video](%s)\n\n", out.Video))
	}
	for _, img := range out.Images {
		sb.WriteString(fmt.Sprintf("![](%s)\n\n", img))
	}
	if out.Audio != "" {
		sb.WriteString(fmt.Sprintf("[🔊 audio](%s)\n\n", out.Audio))
	}
	if out.Text != "" {
		sb.WriteString(out.Text)
	}

	data, _ := json.Marshal(dingTalkSampleMarkdownParam{
		Title: "Generation finished",
		Text:  strings.TrimSpace(sb.String()),
	})
	return "sampleMarkdown", string(data)
}

func (c *DingTalkChannel) sendOTO(token, userID, msgKey, msgParam string) error {
	req := &dingtalkrobot.BatchSendOTORequest{
		RobotCode: tea.String(c.Config.RobotCode),
		UserIds:   []*string{tea.String(userID)},
		MsgKey:    tea.String(msgKey),
		MsgParam:  tea.String(msgParam),
	}
	headers := &dingtalkrobot.BatchSendOTOHeaders{
		XAcsDingtalkAccessToken: tea.String(token),
	}
	_, err := c.robotClient.BatchSendOTOWithOptions(req, headers, &util.RuntimeOptions{})
	return err
}

func (c *DingTalkChannel) sendGroup(token, conversationID, msgKey, msgParam string) error {
	req := &dingtalkrobot.OrgGroupSendRequest{
		RobotCode:          tea.String(c.Config.RobotCode),
		OpenConversationId: tea.String(conversationID),
		MsgKey:             tea.String(msgKey),
		MsgParam:           tea.String(msgParam),
	}
	headers := &dingtalkrobot.OrgGroupSendHeaders{
		XAcsDingtalkAccessToken: tea.String(token),
	}
	_, err := c.robotClient.OrgGroupSendWithOptions(req, headers, &util.RuntimeOptions{})
	return err
}
