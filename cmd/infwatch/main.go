package main

import (
	"context"
	"infwatch/cmd/infwatch/commands"
	"infwatch/lib/serviceutil"
	"infwatch/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "infwatch")
	telemetry.InitSlog(true)
	commands.ExecuteContext(serviceutil.SignalContext())
}
