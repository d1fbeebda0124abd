// Package engine runs the generation loop. It consumes user commands from
// the bus, drives tasks against WaveSpeed AI, and publishes replies and
// finished media back to the channels.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/history"
	"github.com/wavespeedai/wavebot-go/pkg/models"
	"github.com/wavespeedai/wavebot-go/pkg/prompt"
	"github.com/wavespeedai/wavebot-go/pkg/session"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

const helpText = `I turn prompts into media on WaveSpeed AI.

/image <prompt> - generate an image
/video <prompt> - generate a video clip
/upscale [url] - upscale the last image you sent, or the linked one
/status [task id] - check a generation
/model [name key=val ...] - show or pick the model, with overrides
/models - list the model catalog
/guide [name] - how to prompt a model
/enhance on|off - rewrite prompts with an LLM before generating
/clear - reset this chat's preferences

Send a photo first to animate or upscale it.`

// Engine is the core processing loop.
type Engine struct {
	Bus      *bus.MessageBus
	Client   *wavespeed.Client
	Config   *config.Config
	Catalog  *models.Loader
	Sessions *session.Manager
	History  *history.Store  // nil disables the ledger
	Enhancer prompt.Enhancer // nil disables enhancement

	stopChan chan struct{}
}

// NewEngine creates a new Engine.
func NewEngine(
	messageBus *bus.MessageBus,
	client *wavespeed.Client,
	cfg *config.Config,
	store *history.Store,
	enhancer prompt.Enhancer,
) *Engine {
	workspace := cfg.Generation.Defaults.Workspace

	return &Engine{
		Bus:      messageBus,
		Client:   client,
		Config:   cfg,
		Catalog:  models.NewLoader(workspace),
		Sessions: session.NewManager(workspace),
		History:  store,
		Enhancer: enhancer,
		stopChan: make(chan struct{}),
	}
}

// Run starts the engine loop.
func (e *Engine) Run() {
	zap.S().Info("Generation engine started")

	inbound := e.Bus.ConsumeInbound()

	for {
		select {
		case msg := <-inbound:
			go func(m bus.InboundMessage) {
				if err := e.processMessage(m); err != nil {
					zap.S().Errorf("Failed to process message from %s:%s: %v", m.Channel, m.SenderID, err)
					e.Bus.PublishOutbound(bus.NewReply(m, fmt.Sprintf("Sorry, something went wrong: %v", err)))
				}
			}(msg)
		case <-e.stopChan:
			zap.S().Info("Generation engine stopping")
			return
		}
	}
}

// Stop stops the engine loop.
func (e *Engine) Stop() {
	close(e.stopChan)
}

func (e *Engine) processMessage(msg bus.InboundMessage) error {
	sess := e.Sessions.GetOrCreate(msg.SessionKey())
	content := strings.TrimSpace(msg.Content)

	// Stash attachments first; image commands consume them.
	if len(msg.Media) > 0 {
		sess.SetPendingImage(msg.Media[0])
		e.saveSession(sess)
		if content == "" {
			e.reply(msg, "Got the image. Send /video <prompt> to animate it, or /upscale to enhance it.")
			return nil
		}
	}
	if content == "" {
		return nil
	}

	command, args := parseCommand(content)
	switch command {
	case "/start", "/help":
		e.reply(msg, helpText)
	case "/models":
		e.reply(msg, e.Catalog.BuildCatalogSummary())
	case "/model":
		e.handleModel(msg, sess, args)
	case "/guide":
		e.handleGuide(msg, sess, args)
	case "/enhance":
		e.handleEnhance(msg, sess, args)
	case "/clear":
		if err := e.Sessions.Clear(msg.SessionKey()); err != nil {
			return err
		}
		e.reply(msg, "Preferences for this chat were reset.")
	case "/status":
		e.checkStatus(msg, sess, args)
	case "/image":
		e.generate(msg, sess, e.resolveCard(sess, "image"), args)
	case "/video":
		e.generate(msg, sess, e.resolveCard(sess, "video"), args)
	case "/upscale":
		name := "upscale"
		if args != "" {
			if strings.HasPrefix(args, "http://") || strings.HasPrefix(args, "https://") {
				sess.SetPendingImage(args)
				e.saveSession(sess)
			} else {
				name = args
			}
		}
		card, ok := e.Catalog.Lookup(name)
		if !ok {
			e.reply(msg, fmt.Sprintf("Unknown model %q. /models lists the catalog.", name))
			return nil
		}
		e.generate(msg, sess, &card, "")
	default:
		if strings.HasPrefix(content, "/") {
			e.reply(msg, fmt.Sprintf("Unknown command %s. /help lists what I can do.", command))
			return nil
		}
		// Bare text generates on the chat's model.
		e.generate(msg, sess, e.resolveCard(sess, ""), content)
	}
	return nil
}

// parseCommand splits "/video@wavebot a red fox" into "/video" and the
// remaining arguments. Non-command text yields an empty command.
func parseCommand(content string) (command, args string) {
	if !strings.HasPrefix(content, "/") {
		return "", content
	}
	fields := strings.Fields(content)
	command = strings.ToLower(fields[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args = strings.TrimSpace(strings.TrimPrefix(content, fields[0]))
	return command, args
}

func (e *Engine) handleModel(msg bus.InboundMessage, sess *session.Session, args string) {
	if args == "" {
		name := sess.Model
		if name == "" {
			if card, ok := e.Catalog.DefaultCard(); ok {
				name = card.Name + " (default)"
			} else {
				name = "none"
			}
		}
		e.reply(msg, fmt.Sprintf("Current model: %s", name))
		return
	}

	fields := strings.Fields(args)
	card, ok := e.Catalog.Lookup(fields[0])
	if !ok {
		e.reply(msg, fmt.Sprintf("Unknown model %q. /models lists the catalog.", fields[0]))
		return
	}
	if !card.Available {
		e.reply(msg, fmt.Sprintf("Model %s is not usable: %s", card.Name, strings.Join(card.Missing, ", ")))
		return
	}

	params := make(map[string]string)
	var order []string
	for _, tok := range fields[1:] {
		key, value, found := strings.Cut(tok, "=")
		if !found || key == "" {
			e.reply(msg, fmt.Sprintf("Ignoring %q: overrides are key=value pairs.", tok))
			continue
		}
		if _, seen := params[key]; !seen {
			order = append(order, key)
		}
		params[key] = value
	}

	sess.SetModel(card.Name)
	sess.SetParams(params)
	e.saveSession(sess)

	confirm := fmt.Sprintf("Model set to %s. %s", card.Name, card.Description)
	if len(order) > 0 {
		pairs := make([]string, 0, len(order))
		for _, key := range order {
			pairs = append(pairs, key+"="+params[key])
		}
		confirm += fmt.Sprintf(" Overrides: %s.", strings.Join(pairs, ", "))
	}
	e.reply(msg, confirm)
}

// handleGuide shows a card's prompting guide. Without an argument it
// covers the model the chat would generate on.
func (e *Engine) handleGuide(msg bus.InboundMessage, sess *session.Session, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		if card := e.resolveCard(sess, ""); card != nil {
			name = card.Name
		}
	}
	if name == "" {
		e.reply(msg, "No model picked. /guide <name> shows how to prompt one.")
		return
	}

	card, ok := e.Catalog.Lookup(name)
	if !ok {
		e.reply(msg, fmt.Sprintf("Unknown model %q. /models lists the catalog.", name))
		return
	}
	if card.Guide == "" {
		e.reply(msg, fmt.Sprintf("%s: %s", card.Name, card.Description))
		return
	}
	e.reply(msg, fmt.Sprintf("%s: %s\n\n%s", card.Name, card.Description, card.Guide))
}

func (e *Engine) handleEnhance(msg bus.InboundMessage, sess *session.Session, args string) {
	switch strings.ToLower(args) {
	case "on":
		if e.Enhancer == nil {
			e.reply(msg, "Prompt enhancement is not configured on this deployment.")
			return
		}
		sess.SetEnhance(true)
		e.saveSession(sess)
		e.reply(msg, "Prompt enhancement is on.")
	case "off":
		sess.SetEnhance(false)
		e.saveSession(sess)
		e.reply(msg, "Prompt enhancement is off.")
	default:
		state := "off"
		if sess.Enhance {
			state = "on"
		}
		e.reply(msg, fmt.Sprintf("Prompt enhancement is %s. Use /enhance on or /enhance off.", state))
	}
}

func (e *Engine) checkStatus(msg bus.InboundMessage, sess *session.Session, args string) {
	taskID := strings.TrimSpace(args)
	if taskID == "" {
		taskID = sess.LastTask
	}
	if taskID == "" && e.History != nil {
		// Session files can be cleared while the ledger survives.
		if rec, ok := e.History.LastForChat(msg.Channel, msg.ChatID); ok {
			taskID = rec.ID
		}
	}
	if taskID == "" {
		e.reply(msg, "No task to check. Submit a generation first or pass a task ID.")
		return
	}

	result, err := e.Client.Poll(context.Background(), taskID)
	if err != nil {
		e.reply(msg, fmt.Sprintf("❌ %v", err))
		return
	}

	switch result.Status {
	case wavespeed.StatusCompleted:
		e.recordCompleted(taskID, result)
		out := wavespeed.ClassifyResult(result)
		e.deliverResult(msg.Channel, msg.ChatID, taskID, fmt.Sprintf("✅ Task %s finished.", taskID), out)
	case wavespeed.StatusFailed:
		e.recordFailed(taskID, result.Error)
		reason := result.Error
		if reason == "" {
			reason = "Task failed"
		}
		e.reply(msg, fmt.Sprintf("❌ Task %s failed: %s", taskID, reason))
	default:
		e.reply(msg, fmt.Sprintf("⏳ Task %s is %s.", taskID, result.Status))
	}
}

// resolveCard picks the card for a generation: the chat's pick when it fits
// the requested kind, otherwise the first available card of that kind.
// Returns nil when nothing fits; generate reports that to the user.
func (e *Engine) resolveCard(sess *session.Session, kind string) *models.Card {
	if sess.Model != "" {
		if card, ok := e.Catalog.Lookup(sess.Model); ok && card.Available {
			if kind == "" || card.Kind == kind {
				return &card
			}
		}
	}

	if kind == "" {
		if name := e.Config.Generation.Defaults.Model; name != "" {
			if card, ok := e.Catalog.Lookup(name); ok && card.Available {
				return &card
			}
		}
		if card, ok := e.Catalog.DefaultCard(); ok {
			return &card
		}
		return nil
	}

	cards, err := e.Catalog.ListCards()
	if err != nil {
		return nil
	}
	for _, c := range cards {
		if c.Available && c.Kind == kind {
			card := c
			return &card
		}
	}
	return nil
}

func (e *Engine) generate(msg bus.InboundMessage, sess *session.Session, card *models.Card, promptText string) {
	if card == nil {
		e.reply(msg, "No matching model is configured. /models lists the catalog.")
		return
	}

	image := ""
	if requiresImage(*card) {
		image = sess.TakePendingImage()
		if image == "" {
			e.reply(msg, fmt.Sprintf("%s needs a source image. Send a photo first, then repeat the command.", card.Name))
			return
		}
		e.saveSession(sess)
	} else if acceptsImage(*card) && sess.PendingImage != "" {
		image = sess.TakePendingImage()
		e.saveSession(sess)
	}

	if promptText == "" && image == "" {
		e.reply(msg, "Tell me what to generate, e.g. /video a red fox at dawn.")
		return
	}

	ctx := context.Background()

	if e.Enhancer != nil && sess.Enhance && promptText != "" {
		enhanced, err := e.Enhancer.Enhance(ctx, promptText, card.Guide)
		if err != nil {
			zap.S().Warnf("Prompt enhancement failed, using the raw prompt: %v", err)
		} else {
			promptText = enhanced
		}
	}

	req, err := buildRequest(*card, sess.Params, promptText, image)
	if err != nil {
		e.reply(msg, fmt.Sprintf("❌ %v", err))
		return
	}

	task, err := e.Client.Submit(ctx, req)
	if err != nil {
		e.reply(msg, fmt.Sprintf("❌ %v", err))
		return
	}

	sess.SetLastTask(task.ID)
	e.saveSession(sess)
	e.recordSubmission(msg, *card, promptText, task.ID)
	e.reply(msg, fmt.Sprintf("⏳ Task %s submitted on %s. Generating...", task.ID, card.Name))

	start := time.Now()
	result, err := e.Client.Wait(ctx, task.ID, e.waitOptions())
	if err != nil {
		e.recordFailed(task.ID, err.Error())
		e.reply(msg, fmt.Sprintf("❌ %v", err))
		return
	}

	e.recordCompleted(task.ID, result)
	out := wavespeed.ClassifyResult(result)
	caption := fmt.Sprintf("✅ %s finished in %s.", card.Name, time.Since(start).Round(time.Second))
	e.deliverResult(msg.Channel, msg.ChatID, task.ID, caption, out)
}

// buildRequest merges the card defaults, the chat's overrides, and the
// prompt and source image, in that precedence order. Published models
// validate against their schema on submit; dynamic models pass values
// through.
func buildRequest(card models.Card, overrides map[string]string, promptText, image string) (wavespeed.Request, error) {
	values := make(map[string]interface{}, len(card.Defaults)+len(overrides)+2)
	for k, v := range card.Defaults {
		values[k] = v
	}
	for k, raw := range overrides {
		values[k] = models.CoerceParam(card, k, raw)
	}
	if promptText != "" {
		values["prompt"] = promptText
	}
	if image != "" {
		values["image"] = image
	}

	if card.Dynamic {
		return requests.Dynamic(card.Model, values), nil
	}
	schema, ok := requests.Lookup(card.Model)
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", card.Model)
	}
	return schema.Bind(values), nil
}

func requiresImage(card models.Card) bool {
	if card.Dynamic {
		return false
	}
	schema, ok := requests.Lookup(card.Model)
	if !ok {
		return false
	}
	for _, f := range schema.Fields {
		if f.Name == "image" {
			return f.Required
		}
	}
	return false
}

func acceptsImage(card models.Card) bool {
	if card.Dynamic {
		_, ok := card.Params["image"]
		return ok
	}
	schema, ok := requests.Lookup(card.Model)
	if !ok {
		return false
	}
	for _, f := range schema.Fields {
		if f.Name == "image" {
			return true
		}
	}
	return false
}

func (e *Engine) waitOptions() *wavespeed.WaitOptions {
	d := e.Config.Generation.Defaults
	opts := &wavespeed.WaitOptions{}
	if d.PollInterval > 0 {
		opts.PollInterval = time.Duration(d.PollInterval) * time.Second
	}
	if d.MaxWaitTime > 0 {
		opts.Timeout = time.Duration(d.MaxWaitTime) * time.Second
	}
	return opts
}

func (e *Engine) reply(msg bus.InboundMessage, text string) {
	e.Bus.PublishOutbound(bus.NewReply(msg, text))
}

func (e *Engine) saveSession(sess *session.Session) {
	if err := e.Sessions.Save(sess); err != nil {
		zap.S().Warnf("Failed to save session %s: %v", sess.Key, err)
	}
}

// deliverResult publishes a finished generation, media first in the order
// video, images, audio. Text output rides along in the caption.
func (e *Engine) deliverResult(channel, chatID, taskID, caption string, out wavespeed.ClassifiedOutput) {
	media := make([]string, 0, len(out.Images)+2)
	if out.Video != "" {
		media = append(media, out.Video)
	}
	media = append(media, out.Images...)
	if out.Audio != "" {
		media = append(media, out.Audio)
	}
	if out.Text != "" {
		caption = caption + "\n" + out.Text
	}
	e.Bus.PublishOutbound(bus.NewTaskReply(channel, chatID, taskID, caption, media))
}

func (e *Engine) recordSubmission(msg bus.InboundMessage, card models.Card, promptText, taskID string) {
	if e.History == nil {
		return
	}
	rec := &history.Record{
		ID:       taskID,
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Model:    card.Model,
		Prompt:   promptText,
		Status:   string(wavespeed.StatusProcessing),
	}
	if err := e.History.RecordSubmission(rec); err != nil {
		zap.S().Warnf("Failed to record task %s: %v", taskID, err)
	}
}

func (e *Engine) recordCompleted(taskID string, result *wavespeed.TaskResult) {
	if e.History == nil {
		return
	}
	if err := e.History.MarkCompleted(taskID, result.Outputs); err != nil {
		zap.S().Warnf("Failed to update task %s: %v", taskID, err)
	}
}

func (e *Engine) recordFailed(taskID, reason string) {
	if e.History == nil {
		return
	}
	if err := e.History.MarkFailed(taskID, reason); err != nil {
		zap.S().Warnf("Failed to update task %s: %v", taskID, err)
	}
}
