package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

const fallbackSecret = "btcore-tracker-default-secret-do-not-use-in-production"

//nolint:govet // field alignment is acceptable for a config struct
type config struct {
	udpPort         int
	httpAddr        string
	secret          string
	whitelistPath   string
	debug           bool
	showVersion     bool
	collectInterval int // seconds
}

// parseFlags parses command-line flags, falling back to environment
// variables for defaults:
//   - BTCORE_TRACKER__UDP_PORT: UDP listen port (must be > 0)
//   - BTCORE_TRACKER__HTTP_ADDR: HTTP listen address
//   - BTCORE_TRACKER__SECRET: secret key for connection ID signing
//   - BTCORE_TRACKER__WHITELIST: path to a whitelist file
//   - DEBUG: enables debug logging if set
func parseFlags(args []string) config {
	defaultUDPPort := 1337
	if p, err := strconv.Atoi(os.Getenv("BTCORE_TRACKER__UDP_PORT")); err == nil && p > 0 {
		defaultUDPPort = p
	}

	defaultHTTPAddr := os.Getenv("BTCORE_TRACKER__HTTP_ADDR")
	if defaultHTTPAddr == "" {
		defaultHTTPAddr = ":8080"
	}

	defaultSecret := os.Getenv("BTCORE_TRACKER__SECRET")
	if defaultSecret == "" {
		defaultSecret = fallbackSecret
	}

	defaultWhitelist := os.Getenv("BTCORE_TRACKER__WHITELIST")
	debugDefault := os.Getenv("DEBUG") != ""

	fs := flag.NewFlagSet("btcore-tracker", flag.ExitOnError)

	udpPort := fs.Int("udp-port", defaultUDPPort, "UDP port to listen on [env BTCORE_TRACKER__UDP_PORT]")
	fs.IntVar(udpPort, "p", defaultUDPPort, "alias to -udp-port")

	httpAddr := fs.String("http-addr", defaultHTTPAddr, "HTTP listen address [env BTCORE_TRACKER__HTTP_ADDR]")

	secret := fs.String("secret", "", "secret key for connection ID signing [env BTCORE_TRACKER__SECRET]")
	fs.StringVar(secret, "s", "", "alias to -secret")

	whitelist := fs.String("whitelist", defaultWhitelist,
		"path to whitelist file for private tracker mode [env BTCORE_TRACKER__WHITELIST]")
	fs.StringVar(whitelist, "w", defaultWhitelist, "alias to -whitelist")

	collectInterval := fs.Int("collect-interval", 60, "seconds between stale-peer collection sweeps")

	debug := fs.Bool("debug", debugDefault, "enable debug logs [env DEBUG]")
	fs.BoolVar(debug, "d", debugDefault, "alias to -debug")

	showVersion := fs.Bool("version", false, "print version")
	fs.BoolVar(showVersion, "v", false, "alias to -version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "\nbtcore-tracker: %s\nBitTorrent tracker (UDP + HTTP)\n\n", version)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
	}

	//nolint:errcheck // ExitOnError means Parse never returns an error here
	_ = fs.Parse(args)

	if *secret == "" {
		*secret = defaultSecret
	}

	return config{
		udpPort:         *udpPort,
		httpAddr:        *httpAddr,
		secret:          *secret,
		whitelistPath:   *whitelist,
		debug:           *debug,
		showVersion:     *showVersion,
		collectInterval: *collectInterval,
	}
}
