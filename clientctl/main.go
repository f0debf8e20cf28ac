package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/driftchat/driftchat/client"
)

const ClientCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Driftchat client control.

The default urls are:
    api_url: https://api.driftchat.dev
    gateway_url: wss://gateway.driftchat.dev

The session token is read from --token, then the DRIFTCHAT_TOKEN env var
(a .env file in the working directory is honored), then prompted.

Usage:
    clientctl tail [--api_url=<api_url>] [--gateway_url=<gateway_url>]
        [--token=<token>]
        [--channel=<channel_id>]
    clientctl whoami [--token=<token>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --api_url=<api_url>
    --gateway_url=<gateway_url>
    --token=<token>          Your session token.
    --channel=<channel_id>   Mark this channel as actively viewed.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ClientCtlVersion)
	if err != nil {
		panic(err)
	}
	flag.Parse()

	if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		whoami(opts)
	}
}

func sessionToken(opts docopt.Opts) string {
	if token, err := opts.String("--token"); err == nil && token != "" {
		return token
	}

	godotenv.Load()
	if token := os.Getenv("DRIFTCHAT_TOKEN"); token != "" {
		return token
	}

	fmt.Print("Session token: ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		Err.Fatalf("Could not read token (%s).", err)
	}
	return string(tokenBytes)
}

func whoami(opts docopt.Opts) {
	token := sessionToken(opts)

	parsed, err := client.ParseSessionTokenUnverified(token)
	if err != nil {
		Err.Fatalf("Invalid token (%s).", err)
	}
	Out.Printf("user_id: %s", parsed.UserId)
	if parsed.UserName != "" {
		Out.Printf("user_name: %s", parsed.UserName)
	}
	if !parsed.SessionId.IsZero() {
		Out.Printf("session_id: %s", parsed.SessionId)
	}
}

// connect a session and print events, toasts and quality transitions
func tail(opts docopt.Opts) {
	apiUrl, err := opts.String("--api_url")
	if err != nil || apiUrl == "" {
		apiUrl = "https://api.driftchat.dev"
	}
	gatewayUrl, err := opts.String("--gateway_url")
	if err != nil || gatewayUrl == "" {
		gatewayUrl = "wss://gateway.driftchat.dev"
	}
	token := sessionToken(opts)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := client.NewSession(cancelCtx, client.DefaultSessionSettings(apiUrl, gatewayUrl), token)
	if err != nil {
		Err.Fatalf("Could not create session (%s).", err)
	}
	defer session.Logout()

	state := session.State()

	if channelIdStr, err := opts.String("--channel"); err == nil && channelIdStr != "" {
		channelId, err := client.ParseId(channelIdStr)
		if err != nil {
			Err.Fatalf("Invalid channel_id (%s).", err)
		}
		session.ViewChannel(channelId)
	}

	session.Toasts().AddToastCallback(func(toast *client.Toast) {
		Out.Printf("[toast %s] %s: %s", toast.Severity, toast.Kind, toast.Message)
	})
	session.Quality().AddQualityCallback(func(quality client.ConnectionQuality) {
		Out.Printf("[quality] %s", quality)
	})
	state.Messages.Subscribe(func(snapshot map[client.Id][]*client.Message) {
		total := 0
		for _, messages := range snapshot {
			total += len(messages)
		}
		Out.Printf("[messages] %d channels, %d messages", len(snapshot), total)
	})
	state.Guilds.Subscribe(func(snapshot map[client.Id]*client.Guild) {
		Out.Printf("[guilds] %d", len(snapshot))
	})

	if err := session.Connect(); err != nil {
		Err.Fatalf("Could not connect (%s).", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	Out.Printf("Shutting down.")
}
