// Command kernel runs the echo Jupyter kernel or installs its kernelspec.
//
//	kernel run <connection-file>
//	kernel install [--user] [--name NAME] [--display-name NAME]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-jupyter/kernel/internal/config"
	"github.com/go-jupyter/kernel/internal/connection"
	"github.com/go-jupyter/kernel/internal/engine/echo"
	"github.com/go-jupyter/kernel/internal/install"
	"github.com/go-jupyter/kernel/internal/kernel"
	"github.com/go-jupyter/kernel/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runKernel(os.Args[2:])
	case "install":
		runInstall(os.Args[2:])
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  kernel run <connection-file>                     Start the kernel
  kernel install [--user] [--name NAME]            Install the kernelspec
                 [--display-name NAME]`)
}

func runKernel(args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()
	logger := logging.New(&cfg.Logging)

	info, err := connection.Load(args[0])
	if err != nil {
		log.Fatalf("Failed to load connection file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	opts := kernel.Options{
		StreamRateLimit:     cfg.Kernel.StreamRateLimit,
		StreamRateBurst:     cfg.Kernel.StreamRateBurst,
		CompletionCacheSize: cfg.Kernel.CompletionCacheSize,
	}
	if err := kernel.Run(ctx, info, echo.New(), opts, logger); err != nil {
		log.Fatalf("Kernel failed: %v", err)
	}
	logger.Info("Kernel stopped")
}

func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	user := fs.Bool("user", false, "install into the per-user kernels directory")
	name := fs.String("name", "", "kernelspec name (defaults to configured kernel name)")
	displayName := fs.String("display-name", "", "display name shown in frontends")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	if *name == "" {
		*name = cfg.Kernel.Name
	}
	if *displayName == "" {
		*displayName = cfg.Kernel.DisplayName
	}

	executable, err := os.Executable()
	if err != nil {
		log.Fatalf("Failed to resolve executable path: %v", err)
	}

	lang := echo.New().Info().LanguageName
	dir, err := install.Install(install.NewSpec(executable, *displayName, lang), *name, *user)
	if err != nil {
		log.Fatalf("Install failed: %v", err)
	}
	fmt.Printf("Installed kernelspec %q in %s\n", *name, dir)
}
