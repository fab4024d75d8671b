package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/loykin/supervisr/pkg/client"
)

// command runs the API-backed subcommands against one daemon.
type command struct {
	api *client.Client
	url string
	out io.Writer
}

func newCommand(f APIFlags, out io.Writer) *command {
	url := f.APIUrl
	if url == "" {
		url = defaultAPIURL
	}
	cfg := client.Config{
		BaseURL:  url,
		Timeout:  f.APITimeout,
		Token:    f.Token,
		Username: f.Username,
		Password: f.Password,
	}
	if f.Insecure {
		// #nosec G402 opt-in for self-signed daemon certificates
		cfg.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	return &command{
		api: client.New(cfg),
		url: url,
		out: out,
	}
}

func (c *command) ensureReachable(ctx context.Context) error {
	if !c.api.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'supervisr serve'", c.url)
	}
	return nil
}

func (c *command) Status(ctx context.Context, f StatusFlags) error {
	if err := c.ensureReachable(ctx); err != nil {
		return err
	}
	if f.Name == "" {
		all, err := c.api.List(ctx)
		if err != nil {
			return err
		}
		printJSON(c.out, all)
		return nil
	}
	st, err := c.api.Status(ctx, f.Name)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("process %s is not registered", f.Name)
	}
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

func (c *command) Stop(ctx context.Context, f StopFlags) error {
	if f.Name == "" {
		return fmt.Errorf("process name is required")
	}
	if err := c.ensureReachable(ctx); err != nil {
		return err
	}
	state, err := c.api.Stop(ctx, f.Name)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("process %s is not registered", f.Name)
	}
	if err != nil {
		return err
	}
	printJSON(c.out, client.StopResponse{OK: true, State: state})
	return nil
}

func (c *command) Register(ctx context.Context, f RegisterFlags) error {
	if f.Name == "" || f.Command == "" {
		return fmt.Errorf("--name and --command are required")
	}
	if err := c.ensureReachable(ctx); err != nil {
		return err
	}
	st, err := c.api.AddProcess(ctx, client.ProcessRequest{
		Name:      f.Name,
		Command:   f.Command,
		WorkDir:   f.WorkDir,
		Env:       f.Env,
		DependsOn: f.DependsOn,
	})
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

func (c *command) Dependencies(ctx context.Context) error {
	if err := c.ensureReachable(ctx); err != nil {
		return err
	}
	deps, err := c.api.Dependencies(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, deps)
	return nil
}

func (c *command) Login(ctx context.Context, f APIFlags) error {
	if f.Username == "" || f.Password == "" {
		return fmt.Errorf("--user and --password are required")
	}
	tok, err := c.api.Login(ctx, f.Username, f.Password)
	if err != nil {
		return err
	}
	printJSON(c.out, tok)
	return nil
}
