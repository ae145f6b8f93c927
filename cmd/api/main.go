package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"busarrival.dkucouncil.org/internal/appconf"
)

func main() {
	var (
		configFile string
		port       int
	)
	flag.StringVar(&configFile, "f", "config.json", "path to the JSON config file")
	flag.IntVar(&port, "port", 0, "listen port, overriding the config file and BUS_PORT")
	flag.Parse()

	cfg, err := loadConfig(configFile, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	srv, api := CreateServer(coreApp, cfg)
	if err := Run(srv, coreApp, api); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from .env, the config file,
// BUS_* variables and finally the port flag, later sources winning.
func loadConfig(configFile string, port int) (appconf.Config, error) {
	if err := appconf.LoadDotEnv(".env"); err != nil {
		return appconf.Config{}, err
	}

	jsonConfig, err := appconf.LoadFromFile(configFile)
	if err != nil {
		return appconf.Config{}, err
	}
	cfg := jsonConfig.ToAppConfig()

	if err := appconf.ApplyEnvOverrides(&cfg, os.Getenv); err != nil {
		return appconf.Config{}, err
	}
	if port > 0 {
		cfg.Port = port
	}
	return cfg, nil
}
