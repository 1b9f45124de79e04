package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/flare-systems/flare-splunk/internal/logging"
)

// annotationStructuredLog marks commands whose output is structured logs.
const annotationStructuredLog = "structured-log"

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandContextMu sync.RWMutex
	commandContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	commandContext = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	commandContextMu.RLock()
	defer commandContextMu.RUnlock()
	return commandContext
}

func structuredLog(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationStructuredLog] = "true"
	return cmd
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	return cmd != nil && cmd.Annotations[annotationStructuredLog] == "true"
}

// bootstrapCommandLogging records the running command and installs the
// default logger for commands that log structurally. Logs go to stderr so
// stdout stays free for events.
func bootstrapCommandLogging(cmd *cobra.Command, _ []string) error {
	ctx := commandExecutionContext{
		CommandPath:       cmd.CommandPath(),
		UsesStructuredLog: commandUsesStructuredLogging(cmd),
	}
	setCommandExecutionContext(ctx)
	if !ctx.UsesStructuredLog {
		return nil
	}
	_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: ctx.CommandPath, Writer: os.Stderr})
	return err
}
