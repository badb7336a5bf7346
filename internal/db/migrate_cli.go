package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand implements the `fallwatch migrate <action>` subcommand.
// It opens the database without the automatic upgrade so every schema
// change goes through the action the operator asked for.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	action := args[0]

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	database, err := Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", dbPath, err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Applying pending migrations...")
		if err := database.MigrateUp(migrationsFS); err != nil {
			log.Fatalf("Migrate up failed: %v", err)
		}
		log.Println("✓ Schema is at the latest version")
		reportVersion(database, migrationsFS)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrationsFS); err != nil {
			log.Fatalf("Migrate down failed: %v", err)
		}
		log.Println("✓ Rolled back one version")
		reportVersion(database, migrationsFS)

	case "status":
		migrateStatus(database, migrationsFS)

	case "version":
		target := parseVersionArg(args, "fallwatch migrate version <N>")
		log.Printf("Migrating to version %d...", target)
		if err := database.MigrateTo(migrationsFS, target); err != nil {
			log.Fatalf("Migrate to %d failed: %v", target, err)
		}
		log.Printf("✓ Schema is at version %d", target)

	case "force":
		target := parseVersionArg(args, "fallwatch migrate force <N>")
		fmt.Printf("⚠️  Forcing the recorded schema version to %d.\n", target)
		fmt.Println("Only do this to recover from a dirty migration.")
		fmt.Print("Continue? [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			log.Println("Aborted")
			os.Exit(0)
		}
		if err := database.MigrateForce(migrationsFS, int(target)); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("✓ Recorded version forced to %d", target)

	case "baseline":
		target := parseVersionArg(args, "fallwatch migrate baseline <N>")
		log.Printf("Baselining database at version %d...", target)
		if err := database.BaselineAtVersion(target); err != nil {
			log.Fatalf("Baseline failed: %v", err)
		}
		log.Printf("✓ Baselined at version %d", target)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// parseVersionArg reads the numeric argument that actions like `version`
// and `force` require, exiting with usage when it is missing or malformed.
func parseVersionArg(args []string, usage string) uint {
	if len(args) < 2 {
		log.Fatalf("Usage: %s", usage)
	}
	var v uint
	if _, err := fmt.Sscanf(args[1], "%d", &v); err != nil {
		log.Fatalf("Invalid version number: %s", args[1])
	}
	return v
}

func reportVersion(database *DB, migrationsFS fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// migrateStatus prints where the schema stands against the shipped
// migration files.
func migrateStatus(database *DB, migrationsFS fs.FS) {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to scan migration files: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	switch {
	case dirty:
		fmt.Println("\n⚠️  The last migration stopped partway. Inspect the database,")
		fmt.Println("repair what it left behind, then run: fallwatch migrate force <version>")
	case version < latest:
		fmt.Printf("\n⚠️  %d migration(s) outstanding. Run 'fallwatch migrate up' to apply them.\n", latest-version)
	default:
		fmt.Println("\n✓ Database is up to date!")
	}
}

// PrintMigrateHelp lists the migrate actions.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: fallwatch migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Roll back one migration")
	fmt.Println("  status          Show schema version against shipped migrations")
	fmt.Println("  version <N>     Migrate up or down to version N")
	fmt.Println("  force <N>       Overwrite the recorded version (dirty-state recovery)")
	fmt.Println("  baseline <N>    Record version N without running anything")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Adopting an existing database:")
	fmt.Println("  1. fallwatch migrate baseline <N>  # schema already present at N")
	fmt.Println("  2. fallwatch migrate up            # apply what is newer")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>    Path to database file (default: fallwatch.db)")
}
