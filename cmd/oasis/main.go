// Oasis command-line client
//
// Sub-commands:
//
//	oasis login                      Sign in and save a token
//	oasis logout                     Forget the saved token
//	oasis ls [path]                  List a directory
//	oasis find [-in dir] keyword...  Search by name; ".ext" filters by extension
//	oasis get [-o file] path         Download a file
//	oasis share [-ttl 24h] path      Print a share link for a file
//	oasis fetch [-o file] link       Download through a share link
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Fabeuss/oasis/pkg/client"
	"github.com/Fabeuss/oasis/pkg/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "login":
		err = cmdLogin(ctx, os.Args[2:])
	case "logout":
		err = cmdLogout(os.Args[2:])
	case "ls":
		err = cmdList(ctx, os.Args[2:])
	case "find":
		err = cmdFind(ctx, os.Args[2:])
	case "get":
		err = cmdGet(ctx, os.Args[2:])
	case "share":
		err = cmdShare(ctx, os.Args[2:])
	case "fetch":
		err = cmdFetch(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: oasis <login|logout|ls|find|get|share|fetch> [flags] [args]")
}

// commonFlags are accepted by every sub-command.
type commonFlags struct {
	server    *string
	tokenFile *string
	verbose   *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, commonFlags{
		server:    fs.String("server", "", "Server URL (default: saved login or http://localhost:8080)"),
		tokenFile: fs.String("token-file", client.TokenFilePath(), "Token file"),
		verbose:   fs.Bool("v", false, "Log requests to stderr"),
	}
}

// connect builds a client, loading the saved token when requireAuth is set.
func (f commonFlags) connect(requireAuth bool) (*client.Client, error) {
	logger := zap.NewNop()
	if *f.verbose {
		logger, _ = zap.NewDevelopment()
	}

	server := *f.server
	var token string
	if requireAuth {
		tf, err := client.LoadToken(*f.tokenFile)
		if err != nil {
			return nil, fmt.Errorf("not logged in (run 'oasis login'): %w", err)
		}
		if tf.IsExpired(time.Minute) {
			return nil, fmt.Errorf("saved token expired at %s, run 'oasis login'", tf.ExpiresAt.Format(time.RFC3339))
		}
		token = tf.Token
		if server == "" {
			server = tf.Server
		}
	}
	if server == "" {
		server = "http://localhost:8080"
	}

	return client.New(client.Config{
		BaseURL:   server,
		AuthToken: token,
		Logger:    logger,
	}), nil
}

func cmdLogin(ctx context.Context, args []string) error {
	fs, common := newFlagSet("login")
	username := fs.String("user", "", "Username (prompted if empty)")
	fs.Parse(args)

	c, err := common.connect(false)
	if err != nil {
		return err
	}

	if *username == "" {
		fmt.Print("Username: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		*username = strings.TrimSpace(line)
	}
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	resp, err := c.Login(ctx, *username, string(password))
	if err != nil {
		return err
	}

	server := *common.server
	if server == "" {
		server = "http://localhost:8080"
	}
	tf := &client.TokenFile{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		Server:    server,
		Username:  resp.User.Username,
	}
	if err := client.SaveToken(*common.tokenFile, tf); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("Logged in as %s until %s\n", resp.User.Username, humanize.Time(resp.ExpiresAt))
	return nil
}

func cmdLogout(args []string) error {
	fs, common := newFlagSet("logout")
	fs.Parse(args)
	if err := client.DeleteToken(*common.tokenFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func cmdList(ctx context.Context, args []string) error {
	fs, common := newFlagSet("ls")
	fs.Parse(args)

	c, err := common.connect(true)
	if err != nil {
		return err
	}
	entries, err := c.List(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printEntries(entries)
	return nil
}

func cmdFind(ctx context.Context, args []string) error {
	fs, common := newFlagSet("find")
	dir := fs.String("in", "", "Directory to search under")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("find needs at least one keyword")
	}

	c, err := common.connect(true)
	if err != nil {
		return err
	}
	results, err := c.Search(ctx, *dir, fs.Args())
	if err != nil {
		return err
	}
	printEntries(results)
	return nil
}

func cmdGet(ctx context.Context, args []string) error {
	fs, common := newFlagSet("get")
	out := fs.String("o", "", "Output file (default: base name, '-' for stdout)")
	offset := fs.Int64("offset", 0, "First byte to fetch")
	length := fs.Int64("length", 0, "Bytes to fetch (0 = to end)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("get needs exactly one path")
	}

	c, err := common.connect(true)
	if err != nil {
		return err
	}
	content, err := c.Fetch(ctx, fs.Arg(0), *offset, *length)
	if err != nil {
		return err
	}
	return save(content, *out, path.Base(fs.Arg(0)))
}

func cmdShare(ctx context.Context, args []string) error {
	fs, common := newFlagSet("share")
	ttl := fs.Duration("ttl", 24*time.Hour, "How long the link stays valid")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("share needs exactly one path")
	}

	c, err := common.connect(true)
	if err != nil {
		return err
	}
	link, err := c.CreateShareLink(ctx, fs.Arg(0), time.Now().Add(*ttl))
	if err != nil {
		return err
	}
	fmt.Println(c.ShareURL(link))
	return nil
}

func cmdFetch(ctx context.Context, args []string) error {
	fs, common := newFlagSet("fetch")
	out := fs.String("o", "", "Output file (default: shared file name, '-' for stdout)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("fetch needs exactly one share link")
	}

	link := fs.Arg(0)
	if base, query, ok := strings.Cut(link, "/api/v1/file/share?"); ok {
		if *common.server == "" {
			*common.server = base
		}
		link = query
	}

	c, err := common.connect(false)
	if err != nil {
		return err
	}
	content, err := c.FetchShared(ctx, link, 0, 0)
	if err != nil {
		return err
	}
	return save(content, *out, sharedName(link))
}

// sharedName extracts the file name bound into a share link query.
func sharedName(link string) string {
	for _, kv := range strings.Split(link, "&") {
		if k, v, _ := strings.Cut(kv, "="); k == "path" {
			if p, err := url.QueryUnescape(v); err == nil && p != "" {
				return path.Base(p)
			}
		}
	}
	return "download"
}

func save(content *client.Content, out, fallback string) error {
	defer content.Close()

	var w io.Writer = os.Stdout
	if out != "-" {
		if out == "" {
			out = fallback
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := io.Copy(w, content)
	if err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(os.Stderr, "%s: %s of %s\n", out, humanize.IBytes(uint64(n)), humanize.IBytes(uint64(content.Total)))
	}
	return nil
}

func printEntries(entries []models.FileEntry) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := e.HumanSize
		if e.IsDir() {
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, size, humanize.Time(time.Unix(e.Modified, 0)), e.Path)
	}
	tw.Flush()
}
