package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Majhi12/atomic-crm/internal/adapter/store"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/config"
	"github.com/Majhi12/atomic-crm/internal/infra/logger"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
	"github.com/Majhi12/atomic-crm/internal/usecase/eventbus"
)

func main() {
	cmd := "serve"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}
	for _, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" {
			cmd = "help"
		}
	}

	var err error
	switch cmd {
	case "help":
		showUsage(os.Stdout)
		return
	case "serve":
		err = run()
	case "encrypt":
		err = runEncrypt(os.Stdout, os.Args[2:])
	case "stages":
		err = runStages(os.Stdout, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'crm-assistant --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `crm-assistant - conversational assistant for the CRM

USAGE:
    crm-assistant [COMMAND] [FLAGS]

COMMANDS:
    serve            Run the HTTP assistant endpoint (default)
    encrypt VALUE    Print an enc: value for a config secret
                     (passphrase from CRMA_CONFIG_KEY)
    stages           Print the configured deal stage sets
    stages set KIND A,B,C
                     Replace the stage set of KIND (sales, procurement,
                     partnership); the first stage is the default

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml, or CRMA_CONFIG
    Environment: CRMA_* variables override config; OPENAI_API_KEY and
                 TAVILY_API_KEY are honoured`)
}

func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CRMA_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath(os.Args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	}()

	// 3. Audit
	audit, err := initAudit(cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer audit.Close()

	// 4. Store
	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	// 5. Event bus
	bus := eventbus.New(log)
	defer bus.Close()
	unsubscribe := eventbus.LogCRMEvents(bus, log)
	defer unsubscribe()

	// 6. LLM providers
	llmComp, err := initLLM(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 7. Tools
	tools, err := initTools(cfg, db, llmComp.DefaultLLM, audit, bus, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// 8. Assistant and HTTP channel
	rt, err := initRuntime(cfg, llmComp, tools, audit, bus, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	if err := rt.Channel.Start(ctx); err != nil {
		return fmt.Errorf("http channel: %w", err)
	}

	// 9. Maintenance jobs
	scheduler, err := initMaintenance(cfg.Maintenance, tools, log)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	log.Info("crm-assistant started",
		"addr", rt.Channel.Addr(),
		"provider", cfg.LLM.DefaultProvider,
		"tools", len(tools.Dispatcher.Schemas()),
		"web_search", tools.Capabilities.WebSearch,
		"audit", cfg.Audit.Enabled,
		"callers", len(cfg.Auth.Tokens),
	)
	if !cfg.LLM.HasModelKey() {
		log.Warn("model provider API key is not set; assistant requests will fail with 500")
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return rt.Channel.Stop(shutdownCtx)
}

func runEncrypt(w io.Writer, args []string) error {
	var value string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			i++
			continue
		}
		if !strings.HasPrefix(args[i], "-") {
			value = args[i]
			break
		}
	}
	if value == "" {
		return fmt.Errorf("usage: crm-assistant encrypt VALUE")
	}
	passphrase := os.Getenv("CRMA_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("CRMA_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, config.EncPrefix+enc)
	return nil
}

func runStages(w io.Writer, args []string) error {
	var positional []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "-"):
		default:
			positional = append(positional, args[i])
		}
	}

	cfg, err := config.Load(configPath(os.Args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	if len(positional) > 0 {
		if positional[0] != "set" || len(positional) != 3 {
			return fmt.Errorf("usage: crm-assistant stages [set KIND STAGE,STAGE,...]")
		}
		if err := setStages(ctx, db, positional[1], positional[2]); err != nil {
			return err
		}
	}
	return printStages(ctx, w, db)
}

type stageEditor interface {
	ReplaceStageSet(ctx context.Context, kind domain.DealKind, stages []string) error
}

// setStages replaces the stage set of kind with the comma-separated list.
func setStages(ctx context.Context, e stageEditor, kind, list string) error {
	k, ok := domain.ParseDealKind(kind)
	if !ok {
		return fmt.Errorf("unknown deal kind %q (want one of %v)", kind, domain.DealKinds)
	}
	var stages []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if seen[strings.ToLower(s)] {
			return fmt.Errorf("duplicate stage %q", s)
		}
		seen[strings.ToLower(s)] = true
		stages = append(stages, s)
	}
	if len(stages) == 0 {
		return fmt.Errorf("no stages given for %s", k)
	}
	return e.ReplaceStageSet(ctx, k, stages)
}

func printStages(ctx context.Context, w io.Writer, stages domain.StageStore) error {
	entries, err := stages.AllStageSets(ctx)
	if err != nil {
		return err
	}
	byKind := make(map[domain.DealKind][]string)
	for _, e := range entries {
		byKind[e.Kind] = append(byKind[e.Kind], e.Stage)
	}
	for _, kind := range domain.DealKinds {
		fmt.Fprintf(w, "%-12s %s\n", kind+":", strings.Join(byKind[kind], ", "))
	}
	return nil
}
