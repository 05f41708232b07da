// Command station-admin runs schema migrations and administrative PIN resets
// against the configured database.
//
//	station-admin migrate
//	station-admin version
//	station-admin reset-pin -badge 014 [-by 001]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"station-records/app"
)

var errUsage = errors.New("usage: station-admin <migrate|version|reset-pin> [flags]")

type schemaMigrator interface {
	Upgrade(ctx context.Context) (int, error)
	Status(ctx context.Context) (current int, latest int, err error)
}

type pinResetter interface {
	ResetPIN(ctx context.Context, badge, newPIN, resetBy string) error
}

type admin struct {
	migrator schemaMigrator
	pins     pinResetter
	stdin    *bufio.Reader
	stdout   io.Writer
	tty      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.Open(ctx, app.Options{LoadDotEnv: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	a := &admin{
		migrator: core.Migrator,
		pins:     core.Auth,
		stdin:    bufio.NewReader(os.Stdin),
		stdout:   os.Stdout,
		tty:      term.IsTerminal(int(os.Stdin.Fd())),
	}
	err = a.run(ctx, os.Args[1:])
	_ = core.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *admin) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "migrate":
		version, err := a.migrator.Upgrade(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "schema at version %d\n", version)
		return nil

	case "version":
		current, latest, err := a.migrator.Status(ctx)
		if err != nil {
			return err
		}
		state := "up to date"
		switch {
		case current < latest:
			state = fmt.Sprintf("%d pending", latest-current)
		case current > latest:
			state = "ahead of this binary"
		}
		fmt.Fprintf(a.stdout, "schema version %d, latest %d (%s)\n", current, latest, state)
		return nil

	case "reset-pin":
		return a.resetPIN(ctx, args[1:])

	default:
		return errUsage
	}
}

func (a *admin) resetPIN(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset-pin", flag.ContinueOnError)
	fs.SetOutput(a.stdout)
	badge := fs.String("badge", "", "badge number to reset")
	resetBy := fs.String("by", "station-admin", "badge or name recorded as the resetter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*badge) == "" {
		return errors.New("reset-pin: -badge is required")
	}

	pin, err := a.readPIN("New PIN: ")
	if err != nil {
		return err
	}
	confirm, err := a.readPIN("Repeat PIN: ")
	if err != nil {
		return err
	}
	if pin != confirm {
		return errors.New("reset-pin: PINs do not match")
	}

	if err := a.pins.ResetPIN(ctx, *badge, pin, *resetBy); err != nil {
		return fmt.Errorf("reset-pin: %w", err)
	}
	fmt.Fprintf(a.stdout, "PIN reset for badge %s; account unlocked\n", strings.TrimSpace(*badge))
	return nil
}

// readPIN reads without echo on a terminal and one line otherwise.
func (a *admin) readPIN(prompt string) (string, error) {
	if a.tty {
		fmt.Fprint(a.stdout, prompt)
		pin, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(a.stdout)
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return strings.TrimSpace(string(pin)), nil
	}

	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read pin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
