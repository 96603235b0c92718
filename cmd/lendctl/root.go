package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lendingapi/internal/client"
	"lendingapi/internal/tokenstore"
)

const (
	defaultAPI = "http://localhost:8080"
	// redisSessionTTL matches the longest refresh token the API issues.
	redisSessionTTL = 90 * 24 * time.Hour
)

type app struct {
	apiURL       string
	sessionFile  string
	sessionRedis string
	sessionName  string
	debug        bool
	api          *client.Client

	stdin   io.Reader
	stdinFd int
	// lines is shared by successive prompts so buffered input is not lost.
	lines *bufio.Reader
	// httpTimeout bounds each request.
	httpTimeout time.Duration
}

func newApp() *app {
	return &app{
		stdin:       os.Stdin,
		stdinFd:     int(os.Stdin.Fd()),
		httpTimeout: 15 * time.Second,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lendctl",
		Short:         "Browse, borrow and administer books in the lending library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.connect(cmd.ErrOrStderr())
		},
	}

	api := os.Getenv("LENDCTL_API")
	if api == "" {
		api = defaultAPI
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", api, "base URL of the lending API (env LENDCTL_API)")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", "", "where login tokens are kept (default in the user config dir)")
	root.PersistentFlags().StringVar(&a.sessionRedis, "session-redis", os.Getenv("LENDCTL_REDIS_ADDR"), "keep login tokens in this Redis instead of a file (env LENDCTL_REDIS_ADDR)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log each API call to stderr")
	root.PersistentFlags().StringVar(&a.sessionName, "session-name", defaultSessionName(), "session key when tokens are kept in Redis")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRegisterCmd(a),
		newProfileCmd(a),
		newPasswdCmd(a),
		newBooksCmd(a),
		newBorrowCmd(a),
		newAdminCmd(a),
	)
	return root
}

func (a *app) connect(stderr io.Writer) error {
	store, err := a.tokenStore()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if a.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a.api = client.New(a.apiURL, store,
		client.WithHTTPClient(&http.Client{Timeout: a.httpTimeout}),
		client.WithUserAgent("lendctl/1.0"),
		client.WithLogger(logger))
	return nil
}

func (a *app) tokenStore() (tokenstore.Store, error) {
	if a.sessionRedis != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.sessionRedis})
		return tokenstore.NewRedisStore(rdb, a.sessionName, redisSessionTTL), nil
	}

	path := a.sessionFile
	if path == "" {
		p, err := tokenstore.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate session file: %w", err)
		}
		path = p
	}
	return tokenstore.NewFileStore(path), nil
}

func defaultSessionName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "default"
}

// readSecret reads a password without echo when stdin is a terminal, and a
// plain line otherwise so scripts can pipe it in.
func (a *app) readSecret(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	if term.IsTerminal(a.stdinFd) {
		b, err := term.ReadPassword(a.stdinFd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	if a.lines == nil {
		a.lines = bufio.NewReader(a.stdin)
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
