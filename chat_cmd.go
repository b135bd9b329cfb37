package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/speakstream/internal/stream"
)

var (
	chatModel  string
	chatSystem string
	chatRepl   bool

	chatCmd = &cobra.Command{
		Use:   "chat [PROMPT]",
		Short: "Ask a model and hear the answer while it is written",
		Long: paragraph(fmt.Sprintf("\n%s a prompt to an OpenAI-compatible chat model and speak the reply as it streams. "+
			"Without a prompt, or with --repl, keep asking questions in the same conversation. "+
			"The API key is read from OPENAI_API_KEY, which may also live in a .env file.", keyword("Send"))),
		Example: paragraph("speakstream chat 'Explain how tides work'\nspeakstream chat --repl --model gpt-4o"),
		RunE:    runChat,
	}
)

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "chat model (default from config)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt (default from config)")
	chatCmd.Flags().BoolVarP(&chatRepl, "repl", "r", false, "keep asking after the first answer")
}

func newChatClient() (*openai.Client, error) {
	opts := []option.RequestOption{}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	} else if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newChatClient()
	if err != nil {
		return err
	}

	model := cfg.OpenAI.Model
	if chatModel != "" {
		model = chatModel
	}
	system := cfg.OpenAI.SystemPrompt
	if cmd.Flags().Changed("system") {
		system = chatSystem
	}

	a, err := newApp(cmd.Context(), cfg, appOptions{subtitles: subtitled, out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	conv := stream.NewConversation(client, model, system)
	ask := func(prompt string) error {
		src := conv.Ask(prompt)
		defer src.Close() //nolint:errcheck
		res, err := a.speak(cmd.Context(), src)
		return report(cmd, res, err)
	}

	if len(args) > 0 {
		if err := ask(strings.Join(args, " ")); err != nil {
			return err
		}
		if !chatRepl {
			return nil
		}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if cmd.Context().Err() != nil {
			return nil
		}
		if interactive {
			fmt.Fprint(cmd.OutOrStdout(), promptStyle.Render("> "))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		switch prompt {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ask(prompt); err != nil {
			return err
		}
	}
}
