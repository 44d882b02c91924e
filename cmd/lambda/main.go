// Command lambda is the entry point of every cloud function. WEBCHAT_FUNCTION
// selects which one this deployment runs.
//
// Run with -print-state-machine to print the room lifecycle state machine
// for LIFECYCLE_FUNCTION_ARN instead of starting a handler.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/adi-253/webchat/backend/internal/app"
	"github.com/adi-253/webchat/backend/internal/config"
	"github.com/adi-253/webchat/backend/internal/handlers"
	"github.com/adi-253/webchat/backend/internal/logging"
	"github.com/adi-253/webchat/backend/internal/services"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	printStateMachine := flag.Bool("print-state-machine", false, "print the room lifecycle state machine definition and exit")
	functionARN := flag.String("function-arn", "", "lifecycle function ARN (defaults to LIFECYCLE_FUNCTION_ARN)")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("function", cfg.FunctionKind)

	if *printStateMachine {
		arn := *functionARN
		if arn == "" {
			arn = cfg.LifecycleFunctionARN
		}
		if err := writeStateMachine(os.Stdout, arn); err != nil {
			log.WithError(err).Fatal("Failed to render state machine")
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Built once per execution environment and reused across invocations.
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}

	switch cfg.FunctionKind {
	case config.FunctionAPI:
		lambda.Start(handlers.Warmable(a.API.HandleProxy))
	case config.FunctionLifecycle:
		lambda.Start(handlers.Warmable(a.Lifecycle.Step))
	case config.FunctionArchiver:
		lambda.Start(handlers.Warmable(handlers.ArchiveHandler(a.Archive, log)))
	case config.FunctionSweeper:
		lambda.Start(handlers.Warmable(handlers.SweepHandler(a.Cleanup)))
	default:
		log.Fatalf("Unknown WEBCHAT_FUNCTION %q", cfg.FunctionKind)
	}
}

// writeStateMachine writes the lifecycle state machine definition that
// invokes functionARN on every tick.
func writeStateMachine(w io.Writer, functionARN string) error {
	def, err := services.StateMachineDefinition(functionARN)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, def)
	return err
}
