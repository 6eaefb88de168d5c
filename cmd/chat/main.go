// Command chat is a terminal client for the support chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/chatclient"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

var (
	baseURL = flag.String("url", "http://localhost:8080", "Backend base URL")
	email   = flag.String("email", os.Getenv("COLDBOT_EMAIL"), "Account email")
	token   = flag.String("token", os.Getenv("COLDBOT_TOKEN"), "Existing access token, skips sign in")
	verbose = flag.Bool("verbose", false, "Log HTTP calls")
)

const help = `Commands:
  /new               start a new conversation
  /like              rate the last answer as helpful
  /dislike <reason>  rate the last answer (incorrect, incomplete, irrelevant, unclear, outdated, unknown, other)
  /history [text]    list your past questions
  /quit              leave`

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	client := chatclient.NewAPIClient(*baseURL, utils.NewLogger(level, os.Stderr))

	in := bufio.NewScanner(os.Stdin)
	session, err := signIn(ctx, client, in, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if session != nil {
		go func() {
			if err := client.KeepAlive(ctx, session, nil); err != nil {
				fmt.Fprintf(os.Stderr, "\nSession expirée, reconnectez-vous: %v\n", err)
			}
		}()
	}

	shell := &repl{
		client: client,
		chat:   chatclient.NewChat(client),
		out:    os.Stdout,
	}
	fmt.Fprintln(os.Stdout, help)
	shell.run(ctx, in)
}

// signIn returns nil without error when an existing token was given.
func signIn(ctx context.Context, client *chatclient.APIClient, in *bufio.Scanner, out io.Writer) (*models.SessionResponse, error) {
	if *token != "" {
		client.SetToken(*token)
		return nil, nil
	}

	address := *email
	if address == "" {
		fmt.Fprint(out, "Email: ")
		if !in.Scan() {
			return nil, fmt.Errorf("no email given")
		}
		address = strings.TrimSpace(in.Text())
	}
	fmt.Fprint(out, "Mot de passe: ")
	if !in.Scan() {
		return nil, fmt.Errorf("no password given")
	}

	session, err := client.SignIn(ctx, address, strings.TrimSpace(in.Text()), "")
	if err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	fmt.Fprintf(out, "Connecté en tant que %s\n", session.Email)
	return session, nil
}

type repl struct {
	client *chatclient.APIClient
	chat   *chatclient.Chat
	out    io.Writer
}

func (r *repl) run(ctx context.Context, in *bufio.Scanner) {
	for {
		fmt.Fprint(r.out, "> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return
			}
			continue
		}

		r.chat.SetDraft(line)
		if err := r.chat.Submit(ctx); err != nil {
			msgs := r.chat.Messages()
			fmt.Fprintf(r.out, "! %s\n", msgs[len(msgs)-1].Text)
			continue
		}
		if answer, ok := r.chat.LastAnswer(); ok {
			fmt.Fprintf(r.out, "Bot: %s\n", answer.Text)
		}
	}
}

func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/new":
		r.chat.Reset()
		fmt.Fprintln(r.out, "Nouvelle conversation")
	case "/like":
		r.rate(ctx, true, "")
	case "/dislike":
		r.rate(ctx, false, arg)
	case "/history":
		r.history(ctx, arg)
	default:
		fmt.Fprintln(r.out, help)
	}
	return false
}

func (r *repl) rate(ctx context.Context, positive bool, reason string) {
	answer, ok := r.chat.LastAnswer()
	if !ok || answer.MessageID == "" {
		fmt.Fprintln(r.out, "Aucune réponse à évaluer")
		return
	}

	req := models.FeedbackRequest{MessageID: answer.MessageID, IsPositive: &positive}
	if reason != "" {
		req.Reason = &reason
	}
	if _, err := r.client.Feedback(ctx, req); err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "Merci pour votre retour")
}

func (r *repl) history(ctx context.Context, query string) {
	history, err := r.client.History(ctx, chatclient.HistoryParams{Query: query})
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}
	for _, row := range history.Rows {
		fmt.Fprintf(r.out, "%s  %s\n", row.CreatedAt.Format("2006-01-02 15:04"), utils.Truncate(row.Question, 80))
	}
	fmt.Fprintf(r.out, "%d questions, jour le plus actif: %s\n", history.Stats.TotalQuestions, history.Stats.MostActiveDay)
}
