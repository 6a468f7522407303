package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
	"github.com/splitgames/mazehunt/internal/config"
	"github.com/splitgames/mazehunt/internal/game"
	"github.com/splitgames/mazehunt/internal/ws"
	staticserver "github.com/splitgames/mazehunt/static"
)

const version = "v1.0.0"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`MazeHunt - Two-player maze chase relay server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 3000 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 3000)
  ROUNDS_PER_SERIES   Rounds per match series (default: 5)
  NEXT_ROUND_DELAY    Pause between rounds (default: 5s)
  SERIES_END_DELAY    Pause before the series summary (default: 3s)
  ROOM_TTL            Idle time before a room is reclaimed (default: 5m)
  SWEEP_INTERVAL      How often idle rooms are swept (default: 5m)
  STATIC_ENABLED      Serve the embedded game client (default: true)

Examples:
  %s                  Start server with default settings
  %s --port 8080      Start server on port 8080

Visit http://localhost:3000 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("MazeHunt %s\n", version)
		return
	}

	cfg := config.FromEnv()

	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// Room store + socket gateway
	store := game.NewStore(cfg.RoundsPerSeries)
	sock := ws.New(store, cfg)
	io := sock.Mount(r)
	defer io.Close()

	// Idle-room reaper
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	reaper := game.NewReaper(store, cfg.SweepInterval, cfg.RoomTTL)
	go reaper.Run(ctx)

	// Operational stats
	r.GET("/api/rooms/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rooms":       store.Len(),
			"connections": sock.ConnectionCount(),
		})
	})

	// Serve the game client for all other routes
	if cfg.StaticEnabled {
		r.NoRoute(func(c *gin.Context) {
			staticserver.Handler().ServeHTTP(c.Writer, c.Request)
		})
	}

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
