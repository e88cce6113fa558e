package ledger

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/landcover/internal/timeutil"
)

// RunMigrateCommand handles the 'migrate' subcommand for the ledger at
// dbPath. Progress and status go to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("migrate: missing action")
	}
	if dbPath == "" {
		return fmt.Errorf("migrate: ledger_path is not configured")
	}

	s, err := OpenUnmigrated(dbPath, timeutil.RealClock{})
	if err != nil {
		return err
	}
	defer s.Close()

	switch action := args[0]; action {
	case "up":
		if err := s.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
	case "down":
		if err := s.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
	case "status":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: landcover migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[1], err)
		}
		if err := s.MigrateForce(version); err != nil {
			return err
		}
		fmt.Fprintf(out, "Forced version %d\n", version)
	case "help":
		PrintMigrateHelp(out)
		return nil
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}

	version, dirty, err := s.MigrateVersion()
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-way; inspect the database, then run: landcover migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: landcover migrate <action> [args]

Actions:
  up              Apply all pending migrations
  down            Roll back the most recent migration
  status          Show the current schema version
  force <version> Set the recorded version without running migrations
  help            Show this help
`)
}
