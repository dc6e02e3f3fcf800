package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/aicare/internal/app"
	"github.com/ashureev/aicare/internal/config"
	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
)

var (
	chatUser    string
	chatBackend string
	chatVerbose bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive booking conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()

		level := slog.LevelWarn
		if chatVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var choice domain.BackendChoice
		if chatBackend != "" {
			c, ok := domain.ParseBackendChoice(strings.ToLower(chatBackend))
			if !ok {
				return fmt.Errorf("unknown backend %q (want local or remote)", chatBackend)
			}
			choice = c
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, cfg, "console", logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.Start(ctx)

		return runChat(ctx, a.Engine, chatUser, choice, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "console", "user id of the conversation")
	chatCmd.Flags().StringVarP(&chatBackend, "backend", "b", "", "backend for the new session: local or remote")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.AddCommand(chatCmd)
}

// conversation is the part of the engine the console drives.
type conversation interface {
	Start(ctx context.Context, userID string, choice domain.BackendChoice) (dialogue.Reply, error)
	HandleMessage(ctx context.Context, userID, text string) (dialogue.Reply, error)
}

// runChat greets the user and then answers every input line until EOF, an
// ended conversation, or ctx is done.
func runChat(ctx context.Context, conv conversation, userID string, choice domain.BackendChoice, in io.Reader, out io.Writer) error {
	reply, err := conv.Start(ctx, userID, choice)
	if err != nil {
		return err
	}
	printReply(out, reply)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		reply, err := conv.HandleMessage(ctx, userID, text)
		if err != nil {
			return err
		}
		printReply(out, reply)
		if reply.Ended {
			return nil
		}
	}
}

var boldTags = strings.NewReplacer("<b>", "", "</b>", "")

func printReply(out io.Writer, r dialogue.Reply) {
	fmt.Fprintf(out, "AIcare: %s\n", boldTags.Replace(r.Text))
}
