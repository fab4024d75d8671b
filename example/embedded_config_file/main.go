package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/supervisr"
)

// This example loads a TOML config file, starts the defined processes and
// prints their statuses after a few monitor ticks.
func main() {
	cfgPath := filepath.Join("example", "embedded_config_file", "supervisr.toml")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := supervisr.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	sup, err := supervisr.FromConfig(cfg)
	if err != nil {
		panic(err)
	}
	defer sup.Shutdown()
	if err := sup.StartMonitoring(); err != nil {
		panic(err)
	}

	time.Sleep(3 * time.Second)
	b, _ := json.MarshalIndent(sup.Statuses(), "", "  ")
	fmt.Println(string(b))

	for _, st := range sup.Statuses() {
		sup.StopProcess(st.Name)
	}
}
