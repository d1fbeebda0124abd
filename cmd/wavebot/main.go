package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
	"github.com/wavespeedai/wavebot-go/pkg/channels"
	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/cron"
	"github.com/wavespeedai/wavebot-go/pkg/engine"
	"github.com/wavespeedai/wavebot-go/pkg/gateway"
	"github.com/wavespeedai/wavebot-go/pkg/history"
	"github.com/wavespeedai/wavebot-go/pkg/models"
	"github.com/wavespeedai/wavebot-go/pkg/prompt"
	"github.com/wavespeedai/wavebot-go/pkg/utils"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: wavebot <command> [args]")
		fmt.Println("Commands: run, serve, generate, status, upload, models, history, cron, onboard, version")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runBot(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "generate":
		runGenerate(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "upload":
		runUpload(os.Args[2:])
	case "models":
		runModels(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "cron":
		runCron(os.Args[2:])
	case "onboard":
		runOnboard()
	case "version":
		fmt.Printf("wavebot %s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

// kvFlags collects repeated -set key=value flags.
type kvFlags []string

func (f *kvFlags) String() string {
	return strings.Join(*f, ",")
}

func (f *kvFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func loadConfigOrExit(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newClient(cfg *config.Config) *wavespeed.Client {
	if cfg.WaveSpeed.APIKey == "" {
		fmt.Println("No API key configured. Set WAVESPEED_API_KEY or run 'wavebot onboard'.")
		os.Exit(1)
	}
	return wavespeed.New(wavespeed.ClientConfig{
		APIKey:       cfg.WaveSpeed.APIKey,
		BaseURL:      cfg.WaveSpeed.APIBase,
		PollInterval: time.Duration(cfg.WaveSpeed.PollInterval) * time.Second,
		WaitTimeout:  time.Duration(cfg.WaveSpeed.WaitTimeout) * time.Second,
	})
}

func runBot(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	workspace := expandPath(cfg.Generation.Defaults.Workspace)
	cfg.Generation.Defaults.Workspace = workspace

	logDir := filepath.Join(workspace, "logs")
	if _, err := utils.SetupLogger(logDir, false); err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
	}

	client := newClient(cfg)
	messageBus := bus.NewMessageBus()

	var store *history.Store
	if cfg.History.Path != "" {
		s, err := history.Open(expandPath(cfg.History.Path))
		if err != nil {
			fmt.Printf("Error opening history store: %v\n", err)
		} else {
			store = s
			defer store.Close()
		}
	}

	// The enhancer is optional; generation falls back to raw prompts.
	var enhancer prompt.Enhancer
	if cfg.Enhancer.Enabled {
		e, err := prompt.NewEnhancer(cfg)
		if err != nil {
			fmt.Printf("Prompt enhancer disabled: %v\n", err)
		} else {
			enhancer = e
		}
	}

	cronService := cron.NewService(filepath.Join(workspace, "cron.json"), messageBus)
	cronService.Start()
	defer cronService.Stop()

	if cfg.Channels.Telegram.Enabled {
		tgChannel := channels.NewTelegramChannel(&cfg.Channels.Telegram, messageBus)
		if err := tgChannel.Start(); err != nil {
			fmt.Printf("Error starting Telegram channel: %v\n", err)
		} else {
			messageBus.SubscribeOutbound(tgChannel.Name(), func(msg bus.OutboundMessage) {
				if err := tgChannel.Send(msg); err != nil {
					fmt.Printf("Error sending to Telegram: %v\n", err)
				}
			})
		}
	}

	if cfg.Channels.Feishu.Enabled {
		feishuChannel := channels.NewFeishuChannel(&cfg.Channels.Feishu, messageBus)
		if err := feishuChannel.Start(); err != nil {
			fmt.Printf("Error starting Feishu channel: %v\n", err)
		} else {
			messageBus.SubscribeOutbound(feishuChannel.Name(), func(msg bus.OutboundMessage) {
				if err := feishuChannel.Send(msg); err != nil {
					fmt.Printf("Error sending to Feishu: %v\n", err)
				}
			})
		}
	}

	if cfg.Channels.DingTalk.Enabled {
		dingTalkChannel := channels.NewDingTalkChannel(&cfg.Channels.DingTalk, messageBus)
		if err := dingTalkChannel.Start(); err != nil {
			fmt.Printf("Error starting DingTalk channel: %v\n", err)
		} else {
			messageBus.SubscribeOutbound(dingTalkChannel.Name(), func(msg bus.OutboundMessage) {
				if err := dingTalkChannel.Send(msg); err != nil {
					fmt.Printf("Error sending to DingTalk: %v\n", err)
				}
			})
		}
	}

	eng := engine.NewEngine(messageBus, client, cfg, store, enhancer)

	go messageBus.DispatchOutbound()
	go eng.Run()

	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(client, eng.Catalog, store, cfg)
		go func() {
			if err := gw.Start(); err != nil {
				fmt.Printf("Gateway stopped: %v\n", err)
			}
		}()
	}

	fmt.Println("wavebot running. Press Ctrl+C to stop.")
	select {}
}

// runServe starts the REST gateway alone, without any chat channels. The
// explicit command overrides the gateway.enabled config gate.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	client := newClient(cfg)
	catalog := models.NewLoader(expandPath(cfg.Generation.Defaults.Workspace))

	var store *history.Store
	if cfg.History.Path != "" {
		s, err := history.Open(expandPath(cfg.History.Path))
		if err != nil {
			fmt.Printf("Error opening history store: %v\n", err)
		} else {
			store = s
			defer store.Close()
		}
	}

	gw := gateway.NewServer(client, catalog, store, cfg)
	fmt.Printf("Gateway listening on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if err := gw.Start(); err != nil {
		fmt.Printf("Error starting gateway: %v\n", err)
		os.Exit(1)
	}
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	modelName := fs.String("m", "", "Model card name or model ID")
	promptText := fs.String("p", "", "Prompt text")
	image := fs.String("i", "", "Source image, local path or URL")
	outputDir := fs.String("o", "", "Download outputs into this directory")
	noWait := fs.Bool("no-wait", false, "Print the task ID without waiting for the result")
	timeout := fs.Int("timeout", 0, "Seconds to wait for the result (default from config)")
	poll := fs.Int("poll", 0, "Poll interval in seconds (default from config)")
	var sets kvFlags
	fs.Var(&sets, "set", "Extra parameter as key=value, repeatable")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	client := newClient(cfg)
	catalog := models.NewLoader(expandPath(cfg.Generation.Defaults.Workspace))

	name := *modelName
	if name == "" {
		name = cfg.Generation.Defaults.Model
	}
	card, ok := catalog.Lookup(name)
	if !ok {
		fmt.Printf("Unknown model: %s\n", name)
		os.Exit(1)
	}

	ctx := context.Background()

	// Local images are hosted first; the API only accepts URLs.
	imageRef := *image
	if imageRef != "" && !strings.HasPrefix(imageRef, "http") {
		url, err := client.UploadFile(ctx, imageRef)
		if err != nil {
			fmt.Printf("Error uploading %s: %v\n", imageRef, err)
			os.Exit(1)
		}
		fmt.Printf("Uploaded %s -> %s\n", imageRef, url)
		imageRef = url
	}

	values := make(map[string]interface{}, len(card.Defaults)+len(sets)+2)
	for k, v := range card.Defaults {
		values[k] = v
	}
	for _, kv := range sets {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			fmt.Printf("Ignoring %q: -set wants key=value\n", kv)
			continue
		}
		values[key] = models.CoerceParam(card, key, value)
	}
	if *promptText != "" {
		values["prompt"] = *promptText
	}
	if imageRef != "" {
		values["image"] = imageRef
	}

	var req wavespeed.Request
	if card.Dynamic {
		req = requests.Dynamic(card.Model, values)
	} else {
		schema, ok := requests.Lookup(card.Model)
		if !ok {
			fmt.Printf("Unknown model: %s\n", card.Model)
			os.Exit(1)
		}
		req = schema.Bind(values)
	}

	pollSec := cfg.Generation.Defaults.PollInterval
	if *poll > 0 {
		pollSec = *poll
	}
	waitSec := cfg.Generation.Defaults.MaxWaitTime
	if *timeout > 0 {
		waitSec = *timeout
	}

	result, err := client.Run(ctx, req, &wavespeed.RunOptions{
		NoWait:       *noWait,
		PollInterval: time.Duration(pollSec) * time.Second,
		Timeout:      time.Duration(waitSec) * time.Second,
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *noWait {
		fmt.Printf("Task submitted: %s\n", result.ID)
		fmt.Printf("Check it with: wavebot status %s\n", result.ID)
		return
	}

	fmt.Printf("Task %s completed\n", result.ID)
	printOutputs(result)

	dir := *outputDir
	if dir == "" {
		dir = cfg.Generation.Defaults.OutputDir
	}
	if dir != "" {
		paths, err := utils.SaveOutputs(result.Outputs, result.ID, expandPath(dir))
		if err != nil {
			fmt.Printf("Error saving outputs: %v\n", err)
			os.Exit(1)
		}
		for _, p := range paths {
			fmt.Printf("Saved %s\n", p)
		}
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	wait := fs.Bool("wait", false, "Block until the task reaches a terminal state")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: wavebot status [-wait] <task-id>")
		os.Exit(1)
	}
	taskID := fs.Arg(0)

	cfg := loadConfigOrExit(*configPath)
	client := newClient(cfg)

	ctx := context.Background()
	var result *wavespeed.TaskResult
	var err error
	if *wait {
		result, err = client.Wait(ctx, taskID, nil)
	} else {
		result, err = client.Poll(ctx, taskID)
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("Task %s: %s\n", taskID, result.Status)
	switch result.Status {
	case wavespeed.StatusCompleted:
		printOutputs(result)
	case wavespeed.StatusFailed:
		if result.Error != "" {
			fmt.Printf("Reason: %s\n", result.Error)
		}
	}
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: wavebot upload <file>")
		os.Exit(1)
	}

	cfg := loadConfigOrExit(*configPath)
	client := newClient(cfg)

	url, err := client.UploadFile(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(url)
}

func runModels(args []string) {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	catalog := models.NewLoader(expandPath(cfg.Generation.Defaults.Workspace))

	if fs.NArg() >= 1 && fs.Arg(0) == "show" {
		if fs.NArg() < 2 {
			fmt.Println("Usage: wavebot models show <name>")
			os.Exit(1)
		}
		showModel(catalog, fs.Arg(1))
		return
	}

	fmt.Println(catalog.BuildCatalogSummary())
}

func showModel(catalog *models.Loader, name string) {
	card, ok := catalog.Lookup(name)
	if !ok {
		fmt.Printf("Unknown model: %s\n", name)
		os.Exit(1)
	}

	fmt.Printf("%s - %s\n", card.Name, card.Description)
	fmt.Printf("Model: %s\n", card.Model)
	fmt.Printf("Kind: %s\n", card.Kind)

	if card.Dynamic {
		fmt.Println("Endpoint: dynamic (/api/v3/<model>)")
		if len(card.Params) > 0 {
			fmt.Println("Parameters:")
			names := make([]string, 0, len(card.Params))
			for pname := range card.Params {
				names = append(names, pname)
			}
			sort.Strings(names)
			for _, pname := range names {
				spec := card.Params[pname]
				fmt.Printf("  %-24s slot=%s type=%s\n", pname, spec.Placeholder, spec.Type)
			}
		}
	} else if schema, ok := requests.Lookup(card.Model); ok {
		fmt.Printf("Endpoint: POST %s\n", schema.Path)
		fmt.Println("Fields:")
		for _, f := range schema.Fields {
			line := fmt.Sprintf("  %-24s", f.Name)
			if f.Required {
				line += " required"
			}
			if f.Default != nil {
				line += fmt.Sprintf(" default=%v", f.Default)
			}
			if f.Rule != "" {
				line += " " + f.Rule
			}
			fmt.Println(line)
		}
	}

	if len(card.Defaults) > 0 {
		fmt.Println("Card defaults:")
		keys := make([]string, 0, len(card.Defaults))
		for k := range card.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s=%v\n", k, card.Defaults[k])
		}
	}

	if card.Guide != "" {
		fmt.Println()
		fmt.Println(card.Guide)
	}
}

func runCron(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: wavebot cron <list|add|remove|enable|disable> [args]")
		os.Exit(1)
	}

	sub := args[0]
	fs := flag.NewFlagSet("cron "+sub, flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")

	switch sub {
	case "list":
		fs.Parse(args[1:])
		svc := cronServiceFor(loadConfigOrExit(*configPath))
		jobs := svc.ListJobs()
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return
		}
		for _, job := range jobs {
			state := "enabled"
			if !job.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %-20s  %-8s  next=%s  %s\n",
				job.ID, job.Name, state, formatMs(job.State.NextRunAtMs), job.Payload.Command)
		}
	case "add":
		name := fs.String("name", "", "Job name")
		expr := fs.String("expr", "", "Five-field cron expression")
		every := fs.String("every", "", "Interval, e.g. 6h or 30m")
		at := fs.String("at", "", "One-shot time, RFC3339")
		channel := fs.String("channel", "cli", "Channel to deliver into")
		chat := fs.String("chat", "", "Chat ID to deliver into")
		command := fs.String("command", "", "Generation command to run, e.g. '/video a sunrise'")
		fs.Parse(args[1:])

		if *command == "" {
			fmt.Println("A -command is required.")
			os.Exit(1)
		}
		schedule, err := buildSchedule(*expr, *every, *at)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		jobName := *name
		if jobName == "" {
			jobName = *command
		}

		svc := cronServiceFor(loadConfigOrExit(*configPath))
		job := svc.AddJob(jobName, schedule, cron.Payload{
			Channel: *channel,
			ChatID:  *chat,
			Command: *command,
		}, schedule.Kind == "at")
		fmt.Printf("Added job %s, next run %s\n", job.ID, formatMs(job.State.NextRunAtMs))
	case "remove":
		fs.Parse(args[1:])
		if fs.NArg() < 1 {
			fmt.Println("Usage: wavebot cron remove <job-id>")
			os.Exit(1)
		}
		svc := cronServiceFor(loadConfigOrExit(*configPath))
		if svc.RemoveJob(fs.Arg(0)) {
			fmt.Println("Removed.")
		} else {
			fmt.Printf("No job with ID %s\n", fs.Arg(0))
		}
	case "enable", "disable":
		fs.Parse(args[1:])
		if fs.NArg() < 1 {
			fmt.Printf("Usage: wavebot cron %s <job-id>\n", sub)
			os.Exit(1)
		}
		svc := cronServiceFor(loadConfigOrExit(*configPath))
		if svc.SetJobEnabled(fs.Arg(0), sub == "enable") {
			fmt.Printf("Job %s %sd.\n", fs.Arg(0), sub)
		} else {
			fmt.Printf("No job with ID %s\n", fs.Arg(0))
		}
	default:
		fmt.Printf("Unknown cron command: %s\n", sub)
		os.Exit(1)
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	limit := fs.Int("n", 10, "How many records to show")
	channel := fs.String("channel", "", "Filter by channel")
	chat := fs.String("chat", "", "Filter by chat ID")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	if cfg.History.Path == "" {
		fmt.Println("History is disabled: no history.path configured.")
		os.Exit(1)
	}

	store, err := history.Open(expandPath(cfg.History.Path))
	if err != nil {
		fmt.Printf("Error opening history store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	recs, err := store.Recent(*channel, *chat, *limit)
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("No recorded tasks.")
		return
	}

	for _, rec := range recs {
		fmt.Printf("%s  %-10s  %-36s  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"), rec.Status, rec.Model, rec.ID)
		if rec.Error != "" {
			fmt.Printf("    error: %s\n", rec.Error)
		}
	}
}

func cronServiceFor(cfg *config.Config) *cron.Service {
	workspace := expandPath(cfg.Generation.Defaults.Workspace)
	svc := cron.NewService(filepath.Join(workspace, "cron.json"), nil)
	svc.Load()
	return svc
}

func buildSchedule(expr, every, at string) (cron.Schedule, error) {
	set := 0
	for _, v := range []string{expr, every, at} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return cron.Schedule{}, fmt.Errorf("set exactly one of -expr, -every or -at")
	}

	switch {
	case expr != "":
		return cron.Schedule{Kind: "cron", Expr: expr}, nil
	case every != "":
		d, err := time.ParseDuration(every)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid -every value: %v", err)
		}
		return cron.Schedule{Kind: "every", EveryMs: d.Milliseconds()}, nil
	default:
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid -at value, want RFC3339: %v", err)
		}
		return cron.Schedule{Kind: "at", AtMs: ts.UnixMilli()}, nil
	}
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func printOutputs(result *wavespeed.TaskResult) {
	out := wavespeed.ClassifyResult(result)
	if out.Video != "" {
		fmt.Printf("Video: %s\n", out.Video)
	}
	for _, img := range out.Images {
		fmt.Printf("Image: %s\n", img)
	}
	if out.Audio != "" {
		fmt.Printf("Audio: %s\n", out.Audio)
	}
	if out.Text != "" {
		fmt.Printf("Text: %s\n", out.Text)
	}
}

const sampleCard = `---
description: FLUX.1 dev text-to-image on the dynamic model surface
wavebot:
  model: wavespeed-ai/flux-dev
  kind: image
  dynamic: true
  defaults:
    size: 1024*1024
    num_inference_steps: 28
    guidance_scale: 3.5
---

# FLUX.1 dev

Name the subject first, then the style, lighting and composition.
Short prompts work; the model fills in plausible detail.
`

func runOnboard() {
	configDir := ".wavebot"
	if err := os.MkdirAll(configDir, 0755); err != nil {
		fmt.Printf("Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	configFile := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if abs, err := filepath.Abs(filepath.Join(configDir, "workspace")); err == nil {
			cfg.Generation.Defaults.Workspace = abs
		} else {
			cfg.Generation.Defaults.Workspace = filepath.Join(configDir, "workspace")
		}

		file, err := os.Create(configFile)
		if err != nil {
			fmt.Printf("Warning: Could not create config file: %v\n", err)
		} else {
			defer file.Close()
			encoder := json.NewEncoder(file)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(cfg); err != nil {
				fmt.Printf("Error writing config file: %v\n", err)
			}
			fmt.Printf("Created config file at %s\n", configFile)
		}
	} else {
		fmt.Printf("Config file already exists at %s\n", configFile)
	}

	workspace := filepath.Join(configDir, "workspace")
	for _, dir := range []string{workspace, filepath.Join(workspace, "models"), filepath.Join(workspace, "sessions")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Created workspace at %s\n", workspace)

	cardDir := filepath.Join(workspace, "models", "flux-dev")
	cardPath := filepath.Join(cardDir, "MODEL.md")
	if _, err := os.Stat(cardPath); os.IsNotExist(err) {
		if err := os.MkdirAll(cardDir, 0755); err != nil {
			fmt.Printf("Error creating %s: %v\n", cardDir, err)
		} else if err := os.WriteFile(cardPath, []byte(sampleCard), 0644); err != nil {
			fmt.Printf("Error creating sample model card: %v\n", err)
		} else {
			fmt.Printf("Created sample model card at %s\n", cardPath)
		}
	}

	fmt.Println("Onboarding complete! Set your API key in .wavebot/config.json or export WAVESPEED_API_KEY.")
}
