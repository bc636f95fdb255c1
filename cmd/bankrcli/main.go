// Package main is a console front end for the client core. It is a thin
// presentation layer: all state comes from engine and pipeline snapshots.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bankr-ai/assistant-client/internal/api"
	"github.com/bankr-ai/assistant-client/internal/chat"
	"github.com/bankr-ai/assistant-client/internal/config"
	"github.com/bankr-ai/assistant-client/internal/engine"
	"github.com/bankr-ai/assistant-client/internal/entitlement"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/secret"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	secrets, err := fileStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open token store: %v\n", err)
		os.Exit(1)
	}

	client := api.NewClient(api.Options{
		BaseURL:    cfg.APIBaseURL,
		AppName:    cfg.AppName,
		AppVersion: cfg.AppVersion,
	}, secrets, log)

	// No platform IAP subsystem reaches a terminal; the bridge degrades
	// to "not subscribed" and the Stripe checkout path takes over.
	bridge := entitlement.Unsupported(log)
	eng := engine.New(client, bridge, secrets, cfg.StripePriceID, log)
	pipeline := chat.New(client, eng, log)

	ctx := context.Background()
	if err := eng.RestoreSession(ctx); err != nil {
		fmt.Println("stored session is no longer valid, please log in")
	}

	if err := run(ctx, eng, pipeline, client); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func fileStore() (secret.Store, error) {
	path, err := secret.DefaultPath()
	if err != nil {
		return secret.NewMemory(), nil
	}
	return secret.NewFile(path)
}

func run(ctx context.Context, eng *engine.Engine, pipeline *chat.Pipeline, client *api.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("bankrcli: /login, /signup, /logout, /status, /checkout, /quit; anything else is sent to the assistant")

	var activeChat string
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return nil

		case line == "/login":
			if err := login(ctx, eng, client, scanner, false); err != nil {
				fmt.Println(err)
			}

		case line == "/signup":
			if err := login(ctx, eng, client, scanner, true); err != nil {
				fmt.Println(err)
			}

		case line == "/logout":
			eng.Logout(ctx)
			activeChat = ""
			fmt.Println("logged out")

		case line == "/status":
			printStatus(eng.Snapshot())

		case line == "/checkout":
			url, err := eng.CheckoutURL(ctx)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("open in a browser:", url)

		case line == "":
			continue

		default:
			if activeChat == "" {
				conv, err := pipeline.ActiveConversation(ctx)
				if err != nil {
					fmt.Println(err)
					continue
				}
				activeChat = conv.ID
			}
			reply, err := pipeline.SendMessage(ctx, activeChat, line)
			switch {
			case errors.Is(err, chat.ErrQuotaExceeded):
				fmt.Println("free message limit reached, run /checkout to subscribe")
			case err != nil:
				fmt.Println(err)
			case reply != nil:
				fmt.Println(reply.Content)
			}
		}
	}
}

func login(ctx context.Context, eng *engine.Engine, client *api.Client, scanner *bufio.Scanner, signup bool) error {
	email := prompt(scanner, "email: ")
	password := prompt(scanner, "password: ")

	var resp *model.AuthResponse
	var err error
	if signup {
		name := prompt(scanner, "full name: ")
		resp, err = client.Signup(ctx, model.SignupRequest{Email: email, FullName: name, Password: password})
	} else {
		resp, err = client.Login(ctx, model.Credentials{Email: email, Password: password})
	}
	if err != nil {
		return err
	}

	if err := eng.Login(ctx, resp.Session.AccessToken); err != nil {
		return err
	}
	fmt.Println("welcome,", resp.User.Email)
	return nil
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func printStatus(snap engine.Snapshot) {
	if !snap.Authenticated {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("user: %s\nsubscribed: %v\nmessages sent: %d\n",
		snap.User.Email, snap.IsSubscribed, snap.User.MessageCount)
}
