package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/claude/restset/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// restset-mcp serves the MCP tools over stdio for local agents, forwarding
// every call to a remote restset server.
func main() {
	serverURL := flag.String("server", os.Getenv("RESTSET_URL"), "restset server URL (e.g. https://restset.tail1234.ts.net)")
	token := flag.String("token", os.Getenv("RESTSET_TOKEN"), "bearer token for servers in jwt mode")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("restset-mcp", Version)
		return
	}

	// stdout carries the protocol, so logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: restset-mcp -server <URL> [-token <jwt>]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	*serverURL = strings.TrimRight(*serverURL, "/")

	client := mcp.NewHTTPClient(*serverURL, *token)
	s := mcp.New(client, Version, log)

	log.Info("serving MCP over stdio", "server", *serverURL)
	if err := server.ServeStdio(s); err != nil {
		log.Error("stdio server stopped", "error", err)
		os.Exit(1)
	}
}
