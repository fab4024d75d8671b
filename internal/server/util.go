package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/supervisr/internal/registry"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// validateAdd checks a registration request before anything is started.
// Names and depends_on entries follow registry.ValidateName.
func validateAdd(req ProcessRequest) error {
	if err := registry.ValidateName(req.Name); err != nil {
		return err
	}
	if strings.TrimSpace(req.Command) == "" {
		return fmt.Errorf("command required")
	}
	for _, d := range req.DependsOn {
		if err := registry.ValidateName(d); err != nil {
			return fmt.Errorf("depends_on: %w", err)
		}
	}
	return checkWorkDir(req.WorkDir)
}

// checkWorkDir requires a non-empty work_dir to be an existing directory on
// the daemon host, so a typo fails the request instead of every restart.
func checkWorkDir(dir string) error {
	if dir == "" {
		return nil
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("work_dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("work_dir: %s is not a directory", dir)
	}
	return nil
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
