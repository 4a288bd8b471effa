package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sort"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	turntaking "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/transport/socket"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "voicechat",
		Short:        "Hands-free voice conversations with the assistant",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newSchemaCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		profileName  string
		profilesPath string
		url          string
		backend      string
		logFile      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive voice session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if profilesPath == "" {
				profilesPath = os.Getenv("VOICECHAT_PROFILES")
			}
			profiles, err := loadProfiles(profilesPath)
			if err != nil {
				return err
			}
			profile, ok := profiles[profileName]
			if !ok {
				names := make([]string, 0, len(profiles))
				for name := range profiles {
					names = append(names, name)
				}
				sort.Strings(names)
				return fmt.Errorf("unknown profile %q, available: %v", profileName, names)
			}
			if envURL := os.Getenv("VOICECHAT_URL"); envURL != "" {
				profile.URL = envURL
			}
			if cmd.Flags().Changed("url") {
				profile.URL = url
			}
			if cmd.Flags().Changed("backend") {
				profile.Backend = backend
			}
			if err := profile.Validate(); err != nil {
				return err
			}

			closeLog, err := setupLogging(logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, profileName, profile)
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", profileVoice, "profile to run")
	cmd.Flags().StringVar(&profilesPath, "profiles", "", "YAML profile file")
	cmd.Flags().StringVar(&url, "url", "", "assistant websocket URL")
	cmd.Flags().StringVar(&backend, "backend", backendMiniaudio, "audio backend (miniaudio or portaudio)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write debug logs to this file")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [event]",
		Short: "Print the JSON Schemas of the websocket payloads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := socket.Schemas()

			var out any = schemas
			if len(args) == 1 {
				schema, ok := schemas[args[0]]
				if !ok {
					names := make([]string, 0, len(schemas))
					for name := range schemas {
						names = append(names, name)
					}
					slices.Sort(names)
					return fmt.Errorf("no schema for %q, available: %v", args[0], names)
				}
				out = schema
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
}

// setupLogging installs a log provider that writes every package's records
// to path. The terminal belongs to the TUI, so without a path logs are
// dropped.
func setupLogging(path string) (func(), error) {
	slog.SetDefault(otelslog.NewLogger(scopeName))
	if path == "" {
		return func() {}, nil
	}

	f, err := tea.LogToFile(path, "voicechat")
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	global.SetLoggerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
		_ = f.Close()
	}, nil
}

type audioDevice interface {
	turntaking.AudioInput
	turntaking.AudioOutput
	Close() error
}

func openDevice(backend string) (audioDevice, error) {
	switch backend {
	case backendPortaudio:
		return portaudio.NewClient(portaudio.DefaultBufferSize)
	case backendMiniaudio:
		return miniaudio.NewClient()
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

func runSession(ctx context.Context, profileName string, profile Profile) error {
	device, err := openDevice(profile.Backend)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			slog.Warn("failed to close audio device", "error", err)
		}
	}()

	session, err := turntaking.NewSessionContext(profile.SessionOptions()...)
	if err != nil {
		return err
	}

	updates := make(chan tea.Msg, 256)
	notify := func(msg tea.Msg) {
		select {
		case updates <- msg:
		default:
			slog.Warn("ui is lagging, dropping update", "update", fmt.Sprintf("%T", msg))
		}
	}

	client := socket.NewClient(profile.URL,
		socket.WithMaxReconnectAttempts(profile.MaxReconnects),
	)
	controller, err := turntaking.NewTurnController(
		turntaking.WithAudioInput(device),
		turntaking.WithAudioOutput(device),
		turntaking.WithTransportClient(client),
		turntaking.WithSession(session),
		turntaking.WithEventCallback(eventForwarder(notify)),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := controller.Close(); err != nil {
			slog.Warn("failed to close turn controller", "error", err)
		}
	}()

	if err := controller.Run(ctx); err != nil {
		return err
	}

	program := tea.NewProgram(newModel(profileName, profile, controller, updates), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
