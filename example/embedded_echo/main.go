package main

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/loykin/supervisr"
)

// embedded_echo mounts the supervisr API into an Echo server and supervises
// two goroutines: a flaky worker and a reporter that depends on it.
func main() {
	base := os.Getenv("API_BASE")
	if base == "" {
		base = "/api"
	}

	cfg := supervisr.DefaultConfig()
	cfg.Strategy = supervisr.RestForOne
	cfg.MaxRestarts = 10
	cfg.MaxTime = time.Minute
	sup, err := supervisr.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer sup.Shutdown()

	_ = sup.AddProcess("worker", supervisr.GoFactory(func(ctx context.Context) error {
		time.Sleep(time.Duration(3+rand.IntN(5)) * time.Second)
		return errors.New("worker lost its connection")
	}))
	_ = sup.AddProcess("reporter", supervisr.GoFactory(func(ctx context.Context) error {
		for {
			time.Sleep(time.Second)
		}
	}))
	sup.AddDependency("reporter", "worker")
	if err := sup.StartMonitoring(); err != nil {
		log.Fatal(err)
	}

	e := echo.New()
	h := supervisr.NewHTTPHandler(base, sup)
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))
	e.GET("/metrics", echo.WrapHandler(supervisr.MetricsHandler()))
	if err := supervisr.RegisterMetricsDefault(); err != nil {
		log.Println("metrics:", err)
	}

	log.Println("starting echo server on :8080 with base", base)
	if err := e.Start(":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
