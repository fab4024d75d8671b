package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	Token      string
	Username   string
	Password   string
}

type StatusFlags struct {
	APIFlags
	Name string
}

type StopFlags struct {
	APIFlags
	Name string
}

type RegisterFlags struct {
	APIFlags
	Name      string
	Command   string
	WorkDir   string
	Env       []string
	DependsOn []string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type DemoFlags struct {
	Duration   time.Duration
	Interval   time.Duration
	CrashAfter time.Duration
	Strategy   string
}
