// Command ask sends a question to a hangar server and renders the answer.
//
// Usage:
//
//	ask [flags] question...
//	echo "question" | ask [flags]
//
// Flags:
//
//	-url string      Server base URL (default $HANGAR_URL or http://localhost:8080)
//	-session string  Session id sent with the question
//	-verbose         List every tool call instead of a summary
//	-width int       Render width (default $COLUMNS or 100)
//	-raw             Print the JSON response instead of rendering it
//	-no-color        Disable colors (also when NO_COLOR is set)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/goldmark"
	hangarjson "github.com/fwojciec/hangar/json"
	"github.com/muesli/termenv"
)

const defaultURL = "http://localhost:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL = flag.String("url", envOr(os.Getenv("HANGAR_URL"), defaultURL), "Server base URL")
		session = flag.String("session", "", "Session id sent with the question")
		verbose = flag.Bool("verbose", false, "List every tool call")
		width   = flag.Int("width", envInt(os.Getenv("COLUMNS"), 100), "Render width")
		raw     = flag.Bool("raw", false, "Print the JSON response")
		noColor = flag.Bool("no-color", os.Getenv("NO_COLOR") != "", "Disable colors")
		timeout = flag.Duration("timeout", 3*time.Minute, "Request timeout")
	)
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read question: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("no question given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{Timeout: *timeout}
	body, err := ask(ctx, client, *baseURL, hangar.Question{Text: strings.TrimSpace(text), SessionID: *session})
	if err != nil {
		return err
	}
	if *raw {
		_, err := os.Stdout.Write(append(body, '\n'))
		return err
	}

	resp, err := hangarjson.UnmarshalAnswer(body)
	if err != nil {
		return err
	}
	if *noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	fmt.Println(goldmark.RenderAnswer(view(resp), *width, hangar.DefaultTheme(), *verbose))
	return nil
}

// ask posts q to the server and returns the raw answer body.
func ask(ctx context.Context, client *http.Client, baseURL string, q hangar.Question) ([]byte, error) {
	payload, err := hangarjson.EncodeInvocation(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(baseURL, "/")+"/invocations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post question: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e hangarjson.ErrorResponse
		if jerr := json.Unmarshal(body, &e); jerr == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return body, nil
}

// view pairs every tool_use block with its tool_result.
func view(r hangarjson.AnswerResponse) goldmark.AnswerView {
	results := make(map[string]hangarjson.AnswerBlock)
	for _, b := range r.Content {
		if b.Type == "tool_result" {
			results[b.ToolUseID] = b
		}
	}
	v := goldmark.AnswerView{Domain: r.Domain, Text: r.Text(), Degraded: r.Degraded}
	for _, b := range r.Content {
		if b.Type != "tool_use" {
			continue
		}
		res := results[b.ID]
		v.Steps = append(v.Steps, goldmark.Step{Tool: b.Name, IsError: res.IsError, ErrorKind: res.ErrorKind})
	}
	return v
}

func envOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func envInt(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}
