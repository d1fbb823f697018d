// ABOUTME: Command line entry point for inspecting and mutating a taskdb database
// ABOUTME: Thin wrapper over the library; all rules live in the taskdb packages

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/taskdb"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the taskdb config file.
// Priority: TASKDB_CONFIG env var > XDG_CONFIG_HOME/taskdb/config.yaml > ~/.config/taskdb/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TASKDB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "taskdb", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: taskdb <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  list               Show all tasks and their subtasks")
		fmt.Println("  add TEXT           Create a task")
		fmt.Println("  sub TASK_ID TEXT   Create a subtask under a task")
		fmt.Println("  toggle ID          Flip a task's completed flag")
		fmt.Println("  rm ID              Delete a task and its subtasks")
		fmt.Println("  dup ID             Duplicate a task and its subtasks")
		fmt.Println("  watch              Follow the task list live until interrupted")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "list":
		err = withDatabase(ctx, runList)
	case "add":
		err = withDatabase(ctx, runAdd)
	case "sub":
		err = withDatabase(ctx, runSub)
	case "toggle":
		err = withDatabase(ctx, runToggle)
	case "rm":
		err = withDatabase(ctx, runRemove)
	case "dup":
		err = withDatabase(ctx, runDuplicate)
	case "watch":
		err = withDatabase(ctx, runWatch)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withDatabase opens the database, runs fn, and closes it again. A missing
// config file falls back to the default data directory layout.
func withDatabase(ctx context.Context, fn func(ctx context.Context, db *taskdb.Database) error) error {
	configPath := getConfigPath()

	cfg, err := taskdb.LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = taskdb.DefaultConfig()
	}

	db := taskdb.New(cfg, nil)
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}

func runList(ctx context.Context, db *taskdb.Database) error {
	tasks, err := db.ListTasks(ctx)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		printTask(task)
		subs, err := db.ListSubTasks(ctx, task.ID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			printSubTask(sub)
		}
	}

	completed, active, err := db.TaskCounts(ctx)
	if err != nil {
		return err
	}
	gray := color.New(color.FgHiBlack)
	gray.Printf("\n%d active, %d completed\n", active, completed)
	return nil
}

func runAdd(ctx context.Context, db *taskdb.Database) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: taskdb add TEXT")
	}
	task, err := db.CreateTask(ctx, os.Args[2])
	if err != nil {
		return err
	}
	printTask(task)
	return nil
}

func runSub(ctx context.Context, db *taskdb.Database) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: taskdb sub TASK_ID TEXT")
	}
	sub, err := db.CreateSubTask(ctx, os.Args[2], os.Args[3])
	if err != nil {
		return err
	}
	printSubTask(sub)
	return nil
}

func runToggle(ctx context.Context, db *taskdb.Database) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: taskdb toggle ID")
	}
	task, err := db.ToggleTaskCompleted(ctx, os.Args[2])
	if err != nil {
		return err
	}
	printTask(task)
	return nil
}

func runRemove(ctx context.Context, db *taskdb.Database) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: taskdb rm ID")
	}
	return db.DeleteTask(ctx, os.Args[2])
}

func runDuplicate(ctx context.Context, db *taskdb.Database) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: taskdb dup ID")
	}
	task, err := db.DuplicateTask(ctx, os.Args[2])
	if err != nil {
		return err
	}
	printTask(task)
	return nil
}

func runWatch(ctx context.Context, db *taskdb.Database) error {
	sub, err := db.SubscribeTasks(ctx, func(tasks []*taskdb.Task) {
		fmt.Print("\033[2J\033[H") // clear screen
		for _, task := range tasks {
			printTask(task)
		}
		gray := color.New(color.FgHiBlack)
		gray.Printf("\n%d tasks, ctrl-c to stop\n", len(tasks))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func printTask(task *taskdb.Task) {
	box := "[ ]"
	if task.Completed {
		box = color.GreenString("[x]")
	}
	gray := color.New(color.FgHiBlack)
	fmt.Printf("%s %s ", box, task.Text)
	gray.Printf("%s\n", task.ID)
}

func printSubTask(sub *taskdb.SubTask) {
	box := "[ ]"
	if sub.Completed {
		box = color.GreenString("[x]")
	}
	gray := color.New(color.FgHiBlack)
	fmt.Printf("    %s %s ", box, sub.Text)
	gray.Printf("%s\n", sub.ID)
}
