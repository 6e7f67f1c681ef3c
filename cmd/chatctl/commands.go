package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"support-chat/auth"
	"support-chat/client"
	"support-chat/domain/chat"
	"support-chat/projection"
	"support-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/pflag"
)

func watchCmd(ctx context.Context, env cliEnv, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	status := fs.String("status", "", "only show sessions in this status")
	poll := fs.Duration("poll", env.config.PollInterval, "poll interval when the feed is down")
	c, err := connect(fs, env, args)
	if err != nil {
		return err
	}
	var filter *chat.Status
	if *status != "" {
		parsed, err := chat.ParseStatus(*status)
		if err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		filter = &parsed
	}
	console := client.NewConsole(c, filter, *poll, logs.GetLoggerFromString("ERROR")).
		OnChange(func(board *projection.ActivityBoard) {
			fmt.Fprint(env.out, "\033[H\033[2J")
			renderBoard(env.out, board.Rows(filter), time.Now().UTC())
			fmt.Fprintf(env.out, "\n%d unread\n", board.TotalUnread())
		})
	return console.Run(ctx)
}

func statsCmd(ctx context.Context, env cliEnv, args []string) error {
	c, err := connect(pflag.NewFlagSet("stats", pflag.ContinueOnError), env, args)
	if err != nil {
		return err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	renderStats(env.out, stats)
	return nil
}

func searchCmd(ctx context.Context, env cliEnv, args []string) error {
	// every argument, --session and --limit included, is the query: the
	// server parses it, the connection comes from the environment
	c, err := connect(pflag.NewFlagSet("search", pflag.ContinueOnError), env, nil)
	if err != nil {
		return err
	}
	input := strings.TrimSpace(strings.Join(args, " "))
	if input == "" {
		return fmt.Errorf("%w: search needs terms", errUsage)
	}
	result, err := c.Search(ctx, input)
	if err != nil {
		return err
	}
	renderHits(env.out, result)
	return nil
}

func onlineCmd(ctx context.Context, env cliEnv, args []string) error {
	fs := pflag.NewFlagSet("online", pflag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum users listed")
	c, err := connect(fs, env, args)
	if err != nil {
		return err
	}
	users, err := c.Online(ctx, *limit)
	if err != nil {
		return err
	}
	renderOnline(env.out, users, time.Now().UTC())
	return nil
}

func tokenCmd(_ context.Context, env cliEnv, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	secret := fs.String("secret", "", "JWT_SECRET of the server")
	user := fs.String("user", "", "user id")
	role := fs.String("role", string(chat.SenderOperator), "customer, operator, manager or administrator")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *secret == "" || *user == "" {
		return fmt.Errorf("%w: --secret and --user are required", errUsage)
	}
	kind, err := chat.ParseSenderKind(*role)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	token, err := auth.NewTokenManager(*secret, *ttl).Generate(*user, kind)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, token)
	return nil
}

func inspectCmd(_ context.Context, env cliEnv, args []string) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	dbPath := fs.String("db", database.DefaultPath, "path to the badger directory")
	prefix := fs.String("prefix", "", "only keys with this prefix (session:, msg:, lease:)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	return dumpStore(db, []byte(*prefix), env.out)
}

// dumpStore skips the sequence lease, which is not a record.
func dumpStore(db *badger.DB, prefix []byte, out io.Writer) error {
	var rows [][]string
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if strings.HasPrefix(key, "seq:") {
				continue
			}
			err := item.Value(func(v []byte) error {
				kind, detail := repositories.Describe(key, v)
				rows = append(rows, []string{key, kind, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	renderDump(out, rows)
	return nil
}
