// main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usageText = `Usage: cowork <command> [flags]

Commands:
  open        Open a session backup and capture the original snapshot
  checkpoint  Record a checkpoint of the session's workspace
  close       Close a session backup
  show        Print a session's full backup record
  list        List a session's checkpoints
  restore     Restore a checkpoint into a directory
  sessions    List all indexed session backups
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp()
	if err := app.Startup(ctx); err != nil {
		fatal(err)
	}

	err := run(app, os.Args[1], os.Args[2:])
	app.Shutdown()
	if err != nil {
		fatal(err)
	}
}

func run(app *App, command string, args []string) error {
	switch command {
	case "open":
		fs := flag.NewFlagSet("open", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		dir := fs.String("dir", "", "workspace directory (absolute)")
		fs.Parse(args)
		if *session == "" || *dir == "" {
			return fmt.Errorf("open requires -session and -dir")
		}
		return app.OpenSession(*session, *dir)

	case "checkpoint":
		fs := flag.NewFlagSet("checkpoint", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		manual := fs.Bool("manual", false, "record as a manual checkpoint")
		fs.Parse(args)
		if *session == "" {
			return fmt.Errorf("checkpoint requires -session")
		}
		cp, err := app.Checkpoint(*session, *manual)
		if err != nil {
			return err
		}
		return printJSON(cp)

	case "close":
		fs := flag.NewFlagSet("close", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		fs.Parse(args)
		if *session == "" {
			return fmt.Errorf("close requires -session")
		}
		return app.CloseSession(*session)

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		fs.Parse(args)
		if *session == "" {
			return fmt.Errorf("show requires -session")
		}
		record, err := app.GetSession(*session)
		if err != nil {
			return err
		}
		return printJSON(record)

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		fs.Parse(args)
		if *session == "" {
			return fmt.Errorf("list requires -session")
		}
		checkpoints, err := app.ListCheckpoints(*session)
		if err != nil {
			return err
		}
		return printJSON(checkpoints)

	case "restore":
		fs := flag.NewFlagSet("restore", flag.ExitOnError)
		session := fs.String("session", "", "session id")
		checkpoint := fs.String("checkpoint", "", "checkpoint id, or 'original' for the pre-session snapshot")
		target := fs.String("target", "", "directory to restore into")
		fs.Parse(args)
		if *session == "" || *target == "" {
			return fmt.Errorf("restore requires -session and -target")
		}
		return app.RestoreCheckpoint(*session, *checkpoint, *target)

	case "sessions":
		rows, err := app.ListSessions()
		if err != nil {
			return err
		}
		return printJSON(rows)

	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
