package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"yomu/internal/api"
	"yomu/internal/config"
	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/library"
	"yomu/internal/log"
	"yomu/internal/reader"
	"yomu/internal/store"
	"yomu/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("yomu %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.Setup(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting yomu", "version", Version)

	if !cfg.IsConfigured() {
		return runSetupFlow(cfg)
	}

	st, err := store.New(config.DataPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	client := api.NewClient(cfg.Server.URL, cfg.Server.Token, logger)
	coord := coordinator.New(coordinator.Config{}, logger)
	lib := library.NewService(client, st, coord, logger)

	// Reconcile with the server; an unreachable server flips the client
	// into offline mode and the persisted snapshot serves reads.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := lib.PullLibrary(ctx); err != nil {
		logger.Warn("startup reconciliation failed, starting offline", "error", err)
		lib.SetOnline(ctx, false)
	} else {
		lib.Flush(ctx)
	}
	cancel()

	engine := reader.New(lib, coord, reader.Settings{
		Direction:        readerDirection(cfg),
		SpreadMode:       cfg.Reader.SpreadMode,
		WideAspect:       cfg.Reader.WideAspect,
		PrefetchDistance: cfg.Reader.PrefetchDistance,
		SaveDelay:        time.Duration(cfg.Reader.SaveDelayMS) * time.Millisecond,
		Sources:          cfg.Sources.Merge,
	}, logger)

	model := tui.NewModel(lib, engine, cfg.Sources.Merge)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	engine.Close(context.Background())
	logger.Info("shutting down")
	return nil
}

func readerDirection(cfg *config.Config) domain.ReadDirection {
	if cfg.Reader.Direction == string(domain.DirectionRTL) {
		return domain.DirectionRTL
	}
	return domain.DirectionLTR
}

// runSetupFlow handles the initial setup when not configured
func runSetupFlow(cfg *config.Config) error {
	fmt.Println()
	fmt.Println("Welcome to yomu!")
	fmt.Println()

	stdin := bufio.NewReader(os.Stdin)

	var serverURL string
	for {
		fmt.Print("Enter your server URL (e.g., https://reader.example.com): ")
		input, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		serverURL = strings.TrimSpace(input)

		if serverURL == "" {
			fmt.Println("Server URL cannot be empty. Please try again.")
			continue
		}
		if _, err := url.ParseRequestURI(serverURL); err != nil {
			fmt.Println("That does not look like a URL. Please try again.")
			continue
		}
		break
	}

	fmt.Print("Enter your API token (input hidden): ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	cfg.Server.URL = serverURL
	cfg.Server.Token = token

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved!")
	fmt.Println()
	fmt.Println("Run yomu again to start the application.")

	return nil
}
