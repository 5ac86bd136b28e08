package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/drake/tether/client"
	"github.com/drake/tether/config"
)

// Defaults for the login exchange; override with --login-prompt and
// --password-prompt for hosts with unusual banners.
const (
	defaultLoginPrompt    = `(?i)(login|username)[: ]*$`
	defaultPasswordPrompt = `(?i)password[: ]*$`
)

type options struct {
	host           string
	port           int
	user           string
	pass           string
	cmds           []string
	prompt         string
	loginPrompt    string
	passwordPrompt string
	pruneCtrlSeq   bool
	debug          bool
	verbosity      int
	profile        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tether",
		Short: "Run commands on a remote host over Telnet",
		Long: `tether connects to a Telnet server, optionally logs in, runs the
given commands and prints each response up to the prompt. Saved host
profiles from ` + config.ProfilesFile() + ` can be selected with --profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), opts); err != nil {
				slog.Error(err.Error())
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.host, "host", "H", "", "remote host name or address")
	flags.IntVarP(&opts.port, "port", "P", client.DefaultPort, "remote TCP port")
	flags.StringVarP(&opts.user, "user", "u", "", "login username")
	flags.StringVarP(&opts.pass, "pass", "p", "", "login password (prompted if omitted)")
	flags.StringArrayVarP(&opts.cmds, "cmd", "c", nil, "command to run (repeatable)")
	flags.StringVar(&opts.prompt, "prompt", client.DefaultPrompt, "shell prompt regular expression")
	flags.StringVar(&opts.loginPrompt, "login-prompt", defaultLoginPrompt, "login prompt regular expression")
	flags.StringVar(&opts.passwordPrompt, "password-prompt", defaultPasswordPrompt, "password prompt regular expression")
	flags.BoolVar(&opts.pruneCtrlSeq, "prune-ctrl-seq", false, "strip ANSI control sequences from output")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "log protocol negotiation and received lines")
	flags.CountVarP(&opts.verbosity, "verbosity", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&opts.profile, "profile", "", "saved host profile to use")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	setupLogger(opts.verbosity, opts.debug)

	cfg := client.Config{
		Host:                  opts.host,
		Port:                  opts.port,
		Prompt:                opts.prompt,
		PruneControlSequences: opts.pruneCtrlSeq,
		Debug:                 opts.debug,
	}

	if opts.profile != "" {
		profiles, err := config.LoadProfiles(config.ProfilesFile())
		if err != nil {
			return err
		}
		profile, err := profiles.Lookup(opts.profile)
		if err != nil {
			return err
		}
		applyProfile(&cfg, opts, profile)
	}

	pass := opts.pass
	if opts.user != "" && pass == "" {
		var err error
		pass, err = readPassword(opts.user, cfg.Host)
		if err != nil {
			return err
		}
	}

	c, err := client.New(cfg)
	if err != nil {
		return err
	}

	slog.Info("connecting", "host", cfg.Host, "port", cfg.Port)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()

	if opts.user != "" {
		if err := c.Login(opts.user, pass, opts.loginPrompt, opts.passwordPrompt); err != nil {
			return err
		}
	} else {
		// No login: just sync up with the first prompt.
		if _, err := c.WaitPrompt(false); err != nil {
			return err
		}
	}

	for _, command := range opts.cmds {
		lines, err := c.Exec(command)
		if err != nil {
			return fmt.Errorf("running %q: %w", command, err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	}

	return nil
}

// applyProfile fills in everything the command line left unset.
func applyProfile(cfg *client.Config, opts *options, p config.Profile) {
	if cfg.Host == "" {
		cfg.Host = p.Host
	}
	if opts.port == client.DefaultPort && p.Port != 0 {
		cfg.Port = p.Port
	}
	if opts.user == "" {
		opts.user = p.User
	}
	if opts.prompt == client.DefaultPrompt && p.Prompt != "" {
		cfg.Prompt = p.Prompt
	}
	if opts.loginPrompt == defaultLoginPrompt && p.LoginPrompt != "" {
		opts.loginPrompt = p.LoginPrompt
	}
	if opts.passwordPrompt == defaultPasswordPrompt && p.PasswordPrompt != "" {
		opts.passwordPrompt = p.PasswordPrompt
	}
	cfg.ConnectTimeout = p.ConnectTimeout.Std()
	cfg.SocketTimeout = p.SocketTimeout.Std()
	cfg.FullLineTimeout = p.FullLineTimeout.Std()
	if p.PruneControlSequences {
		cfg.PruneControlSequences = true
	}
}

func readPassword(user, host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s@%s password: ", user, host)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pass), nil
}

func setupLogger(verbosity int, debug bool) {
	level := slog.LevelWarn
	switch {
	case debug || verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		TimeFormat: time.TimeOnly,
	})))
}
