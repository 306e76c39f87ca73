package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tomappdev/chatclient"
	"tomappdev/coach"
	"tomappdev/logger"

	"github.com/joho/godotenv"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	godotenv.Load()

	baseURL := os.Getenv("COACH_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := chatclient.Connect(ctx, chatclient.ChatClientConnectProps{Logger: logger.Nop(), BaseURL: baseURL})
	if err := run(ctx, client, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	client      *chatclient.ChatClient
	session     *chatclient.Session
	out         io.Writer
	suggestions []string
}

func run(ctx context.Context, client *chatclient.ChatClient, in io.Reader, out io.Writer) error {
	c := &cli{client: client, session: client.NewSession(coach.Student), out: out}

	fmt.Fprintln(out, "Welcome to the cricket coaching assistant")
	fmt.Fprintln(out, "Commands: /role <student|parent|coach>, /suggest, /quit")
	c.greet(ctx)

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

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit" || input == "/exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case input == "/suggest":
			c.printSuggestions()
		case strings.HasPrefix(input, "/role"):
			c.changeRole(ctx, strings.TrimSpace(strings.TrimPrefix(input, "/role")))
		default:
			c.submit(ctx, c.resolveSuggestion(input))
		}
	}
}

func (c *cli) greet(ctx context.Context) {
	role := c.session.Role()
	c.suggestions = coach.Suggestions(role)
	if info, err := c.client.RoleInfo(ctx, role); err == nil {
		c.suggestions = info.Suggestions
	}

	messages := c.session.Messages()
	fmt.Fprintf(c.out, "\n[%s] %s\n", role.Title(), messages[0].Content)
	c.printSuggestions()
}

func (c *cli) printSuggestions() {
	fmt.Fprintln(c.out, "Try asking:")
	for i, s := range c.suggestions {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, s)
	}
}

func (c *cli) changeRole(ctx context.Context, value string) {
	role, ok := coach.ParseRole(value)
	if value == "" || !ok {
		fmt.Fprintln(c.out, "Choose a role: student, parent or coach")
		return
	}
	c.session.SetRole(role)
	c.greet(ctx)
}

// resolveSuggestion lets a bare number pick a suggestion before the first turn.
func (c *cli) resolveSuggestion(input string) string {
	if !c.session.ShowSuggestions() {
		return input
	}
	i, err := strconv.Atoi(input)
	if err != nil || i < 1 || i > len(c.suggestions) {
		return input
	}
	question := c.suggestions[i-1]
	fmt.Fprintf(c.out, "You: %s\n", question)
	return question
}

func (c *cli) submit(ctx context.Context, input string) {
	fmt.Fprintln(c.out, "Thinking...")
	reply, ok := c.session.Submit(ctx, input)
	if !ok {
		return
	}
	fmt.Fprintf(c.out, "Assistant: %s\n", reply.Content)
}
