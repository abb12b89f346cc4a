package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/preetham599/PSAAutomation/engine"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/templates"
	"github.com/preetham599/PSAAutomation/version"
)

const (
	AppName = "psa-evals"
)

func main() {
	evalPath := flag.String("f", "", "Path to the eval configuration file (YAML)")
	reportBase := flag.String("o", "", "Base path for report files (extension added per type)")
	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")
	reportTypes := flag.String("reportType", "xlsx", "Comma-separated report types: json, md, xlsx")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
			version.Version, version.Commit, version.BuildDate)
		return
	}

	logWriter, logFile, err := logger.SetupWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Setup(logWriter, *verbose)
	templates.NewTemplateEngine()

	if *evalPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <eval-file> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	types := strings.Split(*reportTypes, ",")
	for i, t := range types {
		types[i] = strings.TrimSpace(t)
		if err := engine.ValidateReportType(types[i]); err != nil {
			logger.Logger.Error("Invalid report type", "error", err)
			os.Exit(1)
		}
	}

	logger.Logger.Info("Starting application",
		"app", AppName,
		"config", *evalPath,
		"output", *reportBase,
		"logfile", *logPath,
		"verbose", *verbose)

	os.Exit(engine.Run(*evalPath, *verbose, *reportBase, types))
}
