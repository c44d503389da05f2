package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"argus/internal/backend"
	"argus/internal/markup"
	"argus/internal/stream"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askFile   string
	askFormat string
)

// askCmd sends one message and streams the reply
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message and print the reply",
	Long: `Sends a single message to the agent and writes the reply to stdout.

Formats:
  raw   - reply text as it streams in, markup untouched (default)
  text  - markup removed
  html  - HTML fragment with <b>, <code> and <br>
  term  - styled for the terminal

Token warnings and errors go to stderr. A rate-limited request or a
reply that fails mid-stream exits with status 1.

Example:
  argus ask --file sales.csv "which region drifted most?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "File to upload and attach")
	askCmd.Flags().StringVar(&askFormat, "format", "raw", "Output format: raw, text, html or term")
}

func runAsk(cmd *cobra.Command, args []string) error {
	switch askFormat {
	case "raw", "text", "html", "term":
	default:
		return fmt.Errorf("unknown format %q", askFormat)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(appConfig)
	if err != nil {
		return err
	}

	cr := backend.ChatRequest{
		Message:   strings.TrimSpace(strings.Join(args, " ")),
		RequestID: uuid.NewString(),
	}
	if cr.Message == "" {
		return fmt.Errorf("message is empty")
	}
	if askFile != "" {
		att, err := client.Upload(ctx, askFile)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		logger.Info("Attached file", zap.String("filename", att.Filename), zap.String("path", att.Path))
		cr.FilePath = att.Path
	}

	logger.Debug("Sending message", zap.String("request_id", cr.RequestID), zap.Int("chars", len(cr.Message)))
	s, err := client.Chat(ctx, cr)
	if err != nil {
		var rl *backend.RateLimitError
		if errors.As(err, &rl) {
			return errors.New(rl.Message)
		}
		return err
	}
	defer s.Close()

	text, err := streamReply(ctx, s, cmd.OutOrStdout(), cmd.ErrOrStderr(), askFormat == "raw")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch askFormat {
	case "raw":
		fmt.Fprintln(out)
	case "text":
		fmt.Fprintln(out, markup.PlainText(markup.Parse(text)))
	case "html":
		fmt.Fprintln(out, markup.HTML(text))
	case "term":
		fmt.Fprintln(out, markup.Term(text, markup.DefaultTermStyles()))
	}
	return nil
}

// streamReply decodes s to completion and returns the reply text. With
// echo set the text is also written to out as it arrives.
func streamReply(ctx context.Context, s *backend.Stream, out, errOut io.Writer, echo bool) (string, error) {
	dec := stream.NewDecoder()
	var sb strings.Builder

	handle := func(events []stream.Event) error {
		for _, ev := range events {
			switch ev.Kind {
			case stream.KindText:
				sb.WriteString(ev.Text)
				if echo {
					fmt.Fprint(out, ev.Text)
				}
			case stream.KindWarning:
				fmt.Fprintln(errOut, "warning: conversation is long; older turns were summarized")
			case stream.KindFailure:
				return fmt.Errorf("reply failed: %s", ev.Text)
			}
		}
		return nil
	}

	for {
		data, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if backend.IsCanceled(err) || ctx.Err() != nil {
				return sb.String(), errors.New("cancelled")
			}
			return sb.String(), fmt.Errorf("connection lost: %w", err)
		}
		if err := handle(dec.Feed(data)); err != nil {
			return sb.String(), err
		}
	}
	if err := handle(dec.Flush()); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}
