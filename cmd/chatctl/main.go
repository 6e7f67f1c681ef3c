// chatctl is the operator tool of the support chat: live board, stats,
// transcript search, presence, token minting and offline store dumps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"support-chat/client"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// errUsage marks a bad command line.
var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env cliEnv, args []string) error
}

// cliEnv is what every command gets: the client config and where to write.
type cliEnv struct {
	config client.Config
	out    io.Writer
}

var commands = []command{
	{name: "watch", summary: "live admin board, refreshed from the change feed", run: watchCmd},
	{name: "stats", summary: "session counts per status", run: statsCmd},
	{name: "search", summary: "search transcripts: chatctl search cold burger --session <id>", run: searchCmd},
	{name: "online", summary: "users currently online", run: onlineCmd},
	{name: "token", summary: "mint a bearer token from the shared secret", run: tokenCmd},
	{name: "inspect", summary: "dump a stopped server's badger store", run: inspectCmd},
}

func main() {
	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, out io.Writer) (int, error) {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage(out)
		return exitOK, nil
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		printUsage(out)
		return exitConfig, fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	config, err := client.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = cmd.run(ctx, cliEnv{config: config, out: out}, args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, pflag.ErrHelp) {
			return exitConfig, err
		}
		return exitRuntime, err
	}
	return exitOK, nil
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: chatctl <command> [flags]")
	fmt.Fprintln(out)
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server and token come from CHAT_SERVER_URL and CHAT_TOKEN, or --server and --token.")
}

// connect parses the connection flags shared by the online commands.
func connect(fs *pflag.FlagSet, env cliEnv, args []string) (*client.Client, error) {
	fs.StringVar(&env.config.ServerURL, "server", env.config.ServerURL, "server base URL")
	fs.StringVar(&env.config.Token, "token", env.config.Token, "bearer token")
	logLevel := fs.String("log-level", "ERROR", "client log level")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return client.New(env.config, logs.GetLoggerFromString(*logLevel))
}
