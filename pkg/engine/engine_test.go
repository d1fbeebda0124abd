package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/history"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

type capturedSubmit struct {
	Path    string
	Payload map[string]interface{}
}

func writeEnvelope(w http.ResponseWriter, data map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    200,
		"message": "success",
		"data":    data,
	})
}

// generationHandler accepts any model POST and reports every task as
// completed with the given outputs on the first poll.
func generationHandler(submits chan capturedSubmit, outputs []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/predictions/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		writeEnvelope(w, map[string]interface{}{
			"id":      parts[4],
			"status":  "completed",
			"outputs": outputs,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		select {
		case submits <- capturedSubmit{Path: r.URL.Path, Payload: payload}:
		default:
		}
		writeEnvelope(w, map[string]interface{}{"id": "task-1"})
	})
	return mux
}

func newTestEngine(t *testing.T, handler http.Handler) (*Engine, chan bus.OutboundMessage) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := wavespeed.New(wavespeed.ClientConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	})

	cfg := config.DefaultConfig()
	cfg.Generation.Defaults.Workspace = t.TempDir()
	cfg.Generation.Defaults.PollInterval = 1
	cfg.Generation.Defaults.MaxWaitTime = 5

	messageBus := bus.NewMessageBus()
	e := NewEngine(messageBus, client, cfg, nil, nil)

	replies := make(chan bus.OutboundMessage, 16)
	messageBus.SubscribeOutbound("test", func(msg bus.OutboundMessage) {
		replies <- msg
	})
	go messageBus.DispatchOutbound()
	t.Cleanup(messageBus.Stop)

	return e, replies
}

func inbound(content string, media ...string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "test",
		SenderID:  "u1",
		ChatID:    "chat-1",
		Content:   content,
		Timestamp: time.Now(),
		Media:     media,
	}
}

func nextReply(t *testing.T, replies <-chan bus.OutboundMessage) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-replies:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a reply")
		return bus.OutboundMessage{}
	}
}

// collectReplies gathers n outbound messages. Dispatch order across near
// simultaneous publishes is not guaranteed, so callers match by content.
func collectReplies(t *testing.T, replies <-chan bus.OutboundMessage, n int) []bus.OutboundMessage {
	t.Helper()
	out := make([]bus.OutboundMessage, 0, n)
	for len(out) < n {
		out = append(out, nextReply(t, replies))
	}
	return out
}

func process(t *testing.T, e *Engine, msg bus.InboundMessage) {
	t.Helper()
	if err := e.processMessage(msg); err != nil {
		t.Fatalf("processMessage(%q): %v", msg.Content, err)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		content string
		command string
		args    string
	}{
		{"/video a red fox", "/video", "a red fox"},
		{"/VIDEO@WaveBot a red fox", "/video", "a red fox"},
		{"/models", "/models", ""},
		{"/video\na fox on two lines", "/video", "a fox on two lines"},
		{"just a prompt", "", "just a prompt"},
	}
	for _, c := range cases {
		command, args := parseCommand(c.content)
		if command != c.command || args != c.args {
			t.Errorf("parseCommand(%q) = %q, %q, want %q, %q", c.content, command, args, c.command, c.args)
		}
	}
}

func TestHelpListsCommands(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/help"))

	reply := nextReply(t, replies)
	for _, command := range []string{"/image", "/video", "/upscale", "/status", "/model", "/guide", "/enhance"} {
		if !strings.Contains(reply.Content, command) {
			t.Errorf("help text is missing %s:\n%s", command, reply.Content)
		}
	}
}

func TestModelCommand(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/model"))
	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "kling-t2v (default)") {
		t.Errorf("unexpected current model reply: %q", reply.Content)
	}

	process(t, e, inbound("/model upscale"))
	reply = nextReply(t, replies)
	if !strings.Contains(reply.Content, "Model set to upscale") {
		t.Errorf("unexpected set reply: %q", reply.Content)
	}
	sess := e.Sessions.GetOrCreate("test:chat-1")
	if sess.Model != "upscale" {
		t.Errorf("session model = %q, want upscale", sess.Model)
	}

	process(t, e, inbound("/model nope"))
	reply = nextReply(t, replies)
	if !strings.Contains(reply.Content, "Unknown model") {
		t.Errorf("unexpected unknown-model reply: %q", reply.Content)
	}
}

func TestModelsListsCatalog(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/models"))

	reply := nextReply(t, replies)
	for _, name := range []string{"kling-t2v", "kling-i2v", "upscale"} {
		if !strings.Contains(reply.Content, name) {
			t.Errorf("catalog summary is missing %s:\n%s", name, reply.Content)
		}
	}
}

func TestGuideCommand(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/guide kling-i2v"))
	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "Attach the source image") {
		t.Errorf("guide body missing: %q", reply.Content)
	}

	// Without a name the chat's model, here the default, is covered.
	process(t, e, inbound("/guide"))
	reply = nextReply(t, replies)
	if !strings.Contains(reply.Content, "kling-t2v") {
		t.Errorf("unexpected default guide: %q", reply.Content)
	}

	process(t, e, inbound("/guide nope"))
	reply = nextReply(t, replies)
	if !strings.Contains(reply.Content, "Unknown model") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
}

func TestGenerateVideoFlow(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	videoURL := "https://cdn.example.com/out.mp4"
	e, replies := newTestEngine(t, generationHandler(submits, []string{videoURL}))

	process(t, e, inbound("/video a red fox at dawn"))

	msgs := collectReplies(t, replies, 2)
	var sawAck, sawResult bool
	for _, m := range msgs {
		switch {
		case strings.Contains(m.Content, "submitted"):
			sawAck = true
			if !strings.Contains(m.Content, "task-1") {
				t.Errorf("ack does not name the task: %q", m.Content)
			}
		case len(m.Media) > 0:
			sawResult = true
			if m.Media[0] != videoURL {
				t.Errorf("result media = %v, want %q first", m.Media, videoURL)
			}
			if m.Metadata["task_id"] != "task-1" {
				t.Errorf("result metadata = %v, want task_id task-1", m.Metadata)
			}
		}
	}
	if !sawAck || !sawResult {
		t.Fatalf("expected an ack and a result, got %+v", msgs)
	}

	submit := <-submits
	if submit.Path != "/api/v2/kwaivgi/kling-v1.6-t2v-standard" {
		t.Errorf("submit path = %q", submit.Path)
	}
	if submit.Payload["prompt"] != "a red fox at dawn" {
		t.Errorf("prompt = %v", submit.Payload["prompt"])
	}
	if submit.Payload["duration"] != "5" {
		t.Errorf("duration default = %v, want \"5\"", submit.Payload["duration"])
	}
	if submit.Payload["enable_base64_output"] != false {
		t.Errorf("enable_base64_output = %v, want false", submit.Payload["enable_base64_output"])
	}

	sess := e.Sessions.GetOrCreate("test:chat-1")
	if sess.LastTask != "task-1" {
		t.Errorf("session last task = %q, want task-1", sess.LastTask)
	}
}

func TestImageToVideoConsumesPendingImage(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/out.mp4"}))

	process(t, e, inbound("/model kling-i2v"))
	nextReply(t, replies)

	process(t, e, inbound("", "https://files.example.com/source.png"))
	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "Got the image") {
		t.Errorf("unexpected attachment ack: %q", reply.Content)
	}

	process(t, e, inbound("/video make it wave"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Path != "/api/v2/kwaivgi/kling-v1.6-i2v-standard" {
		t.Errorf("submit path = %q", submit.Path)
	}
	if submit.Payload["image"] != "https://files.example.com/source.png" {
		t.Errorf("image = %v", submit.Payload["image"])
	}

	if sess := e.Sessions.GetOrCreate("test:chat-1"); sess.PendingImage != "" {
		t.Errorf("pending image not consumed: %q", sess.PendingImage)
	}
}

func TestImageRequiredWithoutAttachment(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, nil))

	process(t, e, inbound("/model kling-i2v"))
	nextReply(t, replies)

	process(t, e, inbound("/video make it wave"))
	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "needs a source image") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}

	select {
	case s := <-submits:
		t.Fatalf("submit should not have happened: %+v", s)
	default:
	}
}

func TestUpscaleUsesPendingImage(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/up.png"}))

	process(t, e, inbound("", "https://files.example.com/small.jpg"))
	nextReply(t, replies)

	process(t, e, inbound("/upscale"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Path != "/api/v2/wavespeed-ai/real-esrgan" {
		t.Errorf("submit path = %q", submit.Path)
	}
	if submit.Payload["image"] != "https://files.example.com/small.jpg" {
		t.Errorf("image = %v", submit.Payload["image"])
	}
}

func TestBareTextGeneratesOnDefaultModel(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/out.mp4"}))

	process(t, e, inbound("a quiet lake at dusk"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Path != "/api/v2/kwaivgi/kling-v1.6-t2v-standard" {
		t.Errorf("submit path = %q, want the default model", submit.Path)
	}
	if submit.Payload["prompt"] != "a quiet lake at dusk" {
		t.Errorf("prompt = %v", submit.Payload["prompt"])
	}
}

func TestUnknownCommand(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/dance"))

	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "Unknown command /dance") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
}

func TestStatusCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/predictions/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		id := parts[4]
		switch id {
		case "done-1":
			writeEnvelope(w, map[string]interface{}{
				"id": id, "status": "completed",
				"outputs": []string{"https://cdn.example.com/done.mp4"},
			})
		case "fail-1":
			writeEnvelope(w, map[string]interface{}{
				"id": id, "status": "failed", "error": "NSFW content detected",
			})
		default:
			writeEnvelope(w, map[string]interface{}{"id": id, "status": "processing"})
		}
	})
	e, replies := newTestEngine(t, mux)

	process(t, e, inbound("/status"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "No task to check") {
		t.Errorf("unexpected reply without a task: %q", reply.Content)
	}

	process(t, e, inbound("/status done-1"))
	reply := nextReply(t, replies)
	if len(reply.Media) != 1 || reply.Media[0] != "https://cdn.example.com/done.mp4" {
		t.Errorf("completed status media = %v", reply.Media)
	}
	if reply.Metadata["task_id"] != "done-1" {
		t.Errorf("metadata = %v", reply.Metadata)
	}

	process(t, e, inbound("/status fail-1"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "NSFW content detected") {
		t.Errorf("failed status reply: %q", reply.Content)
	}

	process(t, e, inbound("/status run-1"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "is processing") {
		t.Errorf("in-progress status reply: %q", reply.Content)
	}
}

func TestStatusDefaultsToLastTask(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/predictions/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		writeEnvelope(w, map[string]interface{}{"id": parts[4], "status": "queued"})
	})
	e, replies := newTestEngine(t, mux)

	sess := e.Sessions.GetOrCreate("test:chat-1")
	sess.SetLastTask("task-7")
	e.saveSession(sess)

	process(t, e, inbound("/status"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "task-7 is queued") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
}

func TestModelOverridesShapeThePayload(t *testing.T) {
	submits := make(chan capturedSubmit, 2)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/out.mp4"}))

	process(t, e, inbound("/model kling-t2v duration=10 guidance_scale=0.8"))
	reply := nextReply(t, replies)
	if !strings.Contains(reply.Content, "Overrides: duration=10, guidance_scale=0.8.") {
		t.Errorf("confirmation does not list the overrides: %q", reply.Content)
	}

	process(t, e, inbound("a red fox at dawn"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Payload["duration"] != "10" {
		t.Errorf("duration = %v (%T), want the string \"10\"", submit.Payload["duration"], submit.Payload["duration"])
	}
	if submit.Payload["guidance_scale"] != 0.8 {
		t.Errorf("guidance_scale = %v, want 0.8", submit.Payload["guidance_scale"])
	}

	// Picking the model again without pairs drops the overrides.
	process(t, e, inbound("/model kling-t2v"))
	nextReply(t, replies)

	process(t, e, inbound("a red fox at dawn"))
	collectReplies(t, replies, 2)

	submit = <-submits
	if submit.Payload["duration"] != "5" {
		t.Errorf("duration after reset = %v, want the default \"5\"", submit.Payload["duration"])
	}
}

func TestUpscaleWithURLArgument(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/up.png"}))

	process(t, e, inbound("/upscale https://files.example.com/photo.png"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Path != "/api/v2/wavespeed-ai/real-esrgan" {
		t.Errorf("submit path = %q", submit.Path)
	}
	if submit.Payload["image"] != "https://files.example.com/photo.png" {
		t.Errorf("image = %v, want the linked URL", submit.Payload["image"])
	}
}

func TestStatusFallsBackToHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/predictions/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		writeEnvelope(w, map[string]interface{}{"id": parts[4], "status": "queued"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := wavespeed.New(wavespeed.ClientConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	})

	cfg := config.DefaultConfig()
	cfg.Generation.Defaults.Workspace = t.TempDir()

	store, err := history.Open(cfg.Generation.Defaults.Workspace + "/history.db")
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.RecordSubmission(&history.Record{
		ID: "hist-1", Channel: "test", ChatID: "chat-1", Status: "processing",
	}); err != nil {
		t.Fatalf("failed to seed the ledger: %v", err)
	}

	messageBus := bus.NewMessageBus()
	e := NewEngine(messageBus, client, cfg, store, nil)

	replies := make(chan bus.OutboundMessage, 16)
	messageBus.SubscribeOutbound("test", func(msg bus.OutboundMessage) { replies <- msg })
	go messageBus.DispatchOutbound()
	t.Cleanup(messageBus.Stop)

	// The session carries no last task; the ledger supplies it.
	process(t, e, inbound("/status"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "hist-1 is queued") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
}

func TestGenerationFailureReported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/predictions/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		writeEnvelope(w, map[string]interface{}{
			"id": parts[4], "status": "failed", "error": "model overloaded",
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]interface{}{"id": "task-1"})
	})
	e, replies := newTestEngine(t, mux)

	process(t, e, inbound("/video a doomed request"))

	msgs := collectReplies(t, replies, 2)
	var sawFailure bool
	for _, m := range msgs {
		if strings.Contains(m.Content, "Task failed: model overloaded") {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("expected a failure reply, got %+v", msgs)
	}
}

func TestHistoryLedger(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	videoURL := "https://cdn.example.com/out.mp4"

	server := httptest.NewServer(generationHandler(submits, []string{videoURL}))
	t.Cleanup(server.Close)

	client := wavespeed.New(wavespeed.ClientConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	})

	cfg := config.DefaultConfig()
	cfg.Generation.Defaults.Workspace = t.TempDir()

	store, err := history.Open(cfg.Generation.Defaults.Workspace + "/history.db")
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	messageBus := bus.NewMessageBus()
	e := NewEngine(messageBus, client, cfg, store, nil)

	replies := make(chan bus.OutboundMessage, 16)
	messageBus.SubscribeOutbound("test", func(msg bus.OutboundMessage) { replies <- msg })
	go messageBus.DispatchOutbound()
	t.Cleanup(messageBus.Stop)

	process(t, e, inbound("/video a red fox at dawn"))
	collectReplies(t, replies, 2)

	rec, err := store.Get("task-1")
	if err != nil {
		t.Fatalf("history record missing: %v", err)
	}
	if rec.Status != "completed" {
		t.Errorf("record status = %q, want completed", rec.Status)
	}
	if rec.Model != "kwaivgi/kling-v1.6-t2v-standard" {
		t.Errorf("record model = %q", rec.Model)
	}
	if rec.Prompt != "a red fox at dawn" {
		t.Errorf("record prompt = %q", rec.Prompt)
	}
	if len(rec.Outputs) != 1 || rec.Outputs[0] != videoURL {
		t.Errorf("record outputs = %v", rec.Outputs)
	}
	if rec.Channel != "test" || rec.ChatID != "chat-1" {
		t.Errorf("record origin = %s:%s", rec.Channel, rec.ChatID)
	}
}

type stubEnhancer struct {
	prefix string
	err    error
}

func (s *stubEnhancer) Enhance(ctx context.Context, prompt, guide string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.prefix + prompt, nil
}

func TestEnhanceRewritesPrompt(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/out.mp4"}))
	e.Enhancer = &stubEnhancer{prefix: "Cinematic shot: "}

	process(t, e, inbound("/enhance on"))
	nextReply(t, replies)

	process(t, e, inbound("/video a red fox"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Payload["prompt"] != "Cinematic shot: a red fox" {
		t.Errorf("prompt = %v, want the enhanced prompt", submit.Payload["prompt"])
	}
}

func TestEnhanceFailureFallsBackToRawPrompt(t *testing.T) {
	submits := make(chan capturedSubmit, 1)
	e, replies := newTestEngine(t, generationHandler(submits, []string{"https://cdn.example.com/out.mp4"}))
	e.Enhancer = &stubEnhancer{err: errors.New("backend down")}

	process(t, e, inbound("/enhance on"))
	nextReply(t, replies)

	process(t, e, inbound("/video a red fox"))
	collectReplies(t, replies, 2)

	submit := <-submits
	if submit.Payload["prompt"] != "a red fox" {
		t.Errorf("prompt = %v, want the raw prompt", submit.Payload["prompt"])
	}
}

func TestEnhanceWithoutBackend(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/enhance on"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "not configured") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
}

func TestClearResetsSession(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	process(t, e, inbound("/model upscale"))
	nextReply(t, replies)

	process(t, e, inbound("/clear"))
	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "reset") {
		t.Errorf("unexpected reply: %q", reply.Content)
	}

	if sess := e.Sessions.GetOrCreate("test:chat-1"); sess.Model != "" {
		t.Errorf("session model survived the clear: %q", sess.Model)
	}
}

func TestRunLoopDelivers(t *testing.T) {
	e, replies := newTestEngine(t, generationHandler(nil, nil))

	go e.Run()
	t.Cleanup(e.Stop)

	e.Bus.PublishInbound(inbound("/help"))

	if reply := nextReply(t, replies); !strings.Contains(reply.Content, "/video") {
		t.Errorf("unexpected reply through the loop: %q", reply.Content)
	}
}
