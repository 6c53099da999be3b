// Command connect4-server runs a game server hosting connect4 rooms, each
// with a chat and a per-player clock. Authentication is token-as-identity:
// the token doubles as user id and name, which is enough for a demo.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/chat"
	"github.com/gosuda/boardsync/connect4"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/server"
	"github.com/gosuda/boardsync/timer"
)

var rootCmd = &cobra.Command{
	Use:   "connect4-server",
	Short: "Connect Four game server (rooms, chat, per-player clocks)",
	RunE:  runServer,
}

var (
	flagPort        int
	flagMoveTime    time.Duration
	flagIncrement   time.Duration
	flagRoomTimeout time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVar(&flagPort, "port", 8095, "listen port")
	flags.DurationVar(&flagMoveTime, "move-time", 3*time.Minute, "per-player time budget")
	flags.DurationVar(&flagIncrement, "increment", 5*time.Second, "time added per activation")
	flags.DurationVar(&flagRoomTimeout, "room-timeout", server.DefaultRoomTimeout, "idle room teardown delay")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute connect4-server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := func(token string) (board.UserInfo, error) {
		if token == "" {
			return board.UserInfo{}, errors.New("empty token")
		}
		return board.UserInfo{ID: token, Name: token}, nil
	}

	bus := rpc.NewServer(auth, log.Logger)
	registry := server.NewRegistry(bus, log.Logger)

	game := connect4.NewServerComponent(registry, log.Logger)
	chatRoom := chat.NewServerComponent(registry, log.Logger)
	clock := timer.NewServerComponent(registry, flagMoveTime, flagIncrement, log.Logger)
	chatRoom.Register(bus)
	clock.Register(bus)

	onExpire := func(roomID int64, player int) {
		// The flagged player loses on time; the surrender is injected as a
		// server action so every replica sees the same outcome.
		if err := game.SendServerAction(roomID, &connect4.Surrender{Player: player}); err != nil {
			log.Warn().Err(err).Int64("room", roomID).Msg("timeout surrender failed")
			return
		}
		msg := fmt.Sprintf("player %d ran out of time", player)
		if err := chat.SendServerMessage(chatRoom, roomID, msg); err != nil {
			log.Warn().Err(err).Int64("room", roomID).Msg("timeout notice failed")
		}
	}

	game.RegisterWithCreation(bus, server.CreationSettings[connect4.State]{
		Components: func(options board.GameOptions) []server.ComponentConstructor {
			return []server.ComponentConstructor{
				chat.ConstructorWithCallback(chatRoom, options, func(roomID int64, msg chat.Message) {
					log.Debug().Int64("room", roomID).Str("from", msg.User.Name).Msg("chat message")
				}),
				timer.Constructor(clock, options, onExpire),
			}
		},
		AfterAction: func(roomID int64, state connect4.State, action board.Action) {
			// Drive the clock off the game: whoever is to move has the
			// running clock, nobody once the game ends.
			var active *int
			if state.VictoriousPlayer == -1 {
				player := state.CurrentPlayer
				active = &player
			}
			if err := timer.SetActive(clock, roomID, active); err != nil {
				log.Warn().Err(err).Int64("room", roomID).Msg("clock switch failed")
			}
		},
		Timeout: flagRoomTimeout,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("connect4-server: connect a game client to /ws\n"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/ws", bus)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", flagPort),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", flagPort).Msg("connect4 server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
