// Package requester sends word-frequency requests and renders the replies.
package requester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	berr "github.com/next-trace/scg-wordfreq/contract/errors"
	"github.com/next-trace/scg-wordfreq/contract/wordfreq"
)

// DefaultText is analyzed when no text argument is given.
const DefaultText = "the quick brown fox jumps over the lazy dog the fox"

const defaultTimeout = 5 * time.Second

type Config struct {
	Subject string
	Timeout time.Duration
}

// Client performs one blocking round-trip per call.
type Client struct {
	cfg    Config
	req    cbus.Requester
	logger *slog.Logger
}

func New(cfg Config, req cbus.Requester, logger *slog.Logger) *Client {
	if cfg.Subject == "" {
		cfg.Subject = wordfreq.DefaultSubject
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{cfg: cfg, req: req, logger: logger}
}

// Analyze asks the service for the topN most frequent words of text.
// When no reply arrives within the configured timeout the error wraps berr.ErrNoReply.
func (c *Client) Analyze(ctx context.Context, text string, topN int) (wordfreq.Response, error) {
	data, err := wordfreq.Encode(wordfreq.Request{Text: text, TopN: topN})
	if err != nil {
		return wordfreq.Response{}, err
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.DebugContext(ctx, "sending request", "subject", c.cfg.Subject, "limit", topN)

	raw, err := c.req.Request(rctx, c.cfg.Subject, data)
	if err != nil {
		// our own deadline, not the caller's cancellation
		if ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) && !errors.Is(err, berr.ErrNoReply) {
			err = errors.Join(berr.ErrNoReply, err)
		}

		return wordfreq.Response{}, fmt.Errorf("request %s: %w", c.cfg.Subject, err)
	}

	return wordfreq.DecodeResponse(raw)
}

// Args are the parsed command-line arguments.
type Args struct {
	Text  string
	Limit int
}

// ParseArgs reads the optional positional text and limit. A missing or non-integer
// limit falls back to wordfreq.DefaultTopN.
func ParseArgs(args []string) Args {
	a := Args{Text: DefaultText, Limit: wordfreq.DefaultTopN}

	if len(args) > 0 {
		a.Text = args[0]
	}

	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			a.Limit = n
		}
	}

	return a
}

// Render writes the reply in the client's line format.
func Render(w io.Writer, resp wordfreq.Response) {
	fmt.Fprintf(w, "Total: %d\n", resp.TotalWords)
	fmt.Fprintln(w, "Top:")

	for _, it := range resp.WordFrequencies {
		fmt.Fprintf(w, " - %s: %d\n", it.Word, it.Count)
	}
}

// Run is the one-shot client flow. Failures are reported on w and returned; a missing
// reply is reported differently from any other error.
func Run(ctx context.Context, w io.Writer, c *Client, args []string) error {
	a := ParseArgs(args)

	fmt.Fprintf(w, "Sending: %s\n", a.Text)
	fmt.Fprintf(w, "Limit: %d\n", a.Limit)

	resp, err := c.Analyze(ctx, a.Text, a.Limit)

	switch {
	case errors.Is(err, berr.ErrNoReply):
		fmt.Fprintln(w, "No reply. Service running?")

		return err
	case err != nil:
		fmt.Fprintf(w, "Error: %v\n", err)

		return err
	}

	Render(w, resp)

	return nil
}
