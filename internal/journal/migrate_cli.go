package journal

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	j, err := Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := j.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied")
		printVersion(j)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := j.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back")
		printVersion(j)

	case "status":
		version, dirty, err := j.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("WARNING: a migration failed mid-execution.")
			fmt.Println("Inspect the database, then use 'migrate force <version>' to recover.")
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: canbridge migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version number %q: %v", args[1], err)
		}
		if err := j.MigrateForce(version); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", version)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func printVersion(j *Journal) {
	version, dirty, err := j.MigrateVersion()
	if err != nil {
		log.Printf("Failed to read version: %v", err)
		return
	}
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Usage: canbridge migrate <action> [args]

Actions:
  up               apply all pending migrations
  down             roll back the most recent migration
  status           show the current migration version
  force <version>  set the version without running migrations
  help             show this help`)
}
