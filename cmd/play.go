package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"driftfm/core/catalog"
	"driftfm/core/player"
	"driftfm/logger"
	"driftfm/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

var (
	playListenAddr string
	playListenerID string
)

var playCmd = &cobra.Command{
	Use:   "play [track ids...]",
	Short: "Run the headless playback engine",
	Long: `Starts the playback session against the catalog API, queues the given
track ids and exposes the session state over a websocket plus a small
control surface for UIs.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPlayer(args); err != nil {
			logger.Fatal("player exited", logger.ErrorField(err))
		}
	},
}

func init() {
	playCmd.Flags().StringVar(&playListenAddr, "listen", "127.0.0.1:8090", "address for the state feed and control endpoints")
	playCmd.Flags().StringVar(&playListenerID, "listener-id", "", "listener id for likes and play history (default: random)")
	rootCmd.AddCommand(playCmd)
}

func runPlayer(args []string) error {
	listenerID := playListenerID
	if listenerID == "" {
		listenerID = uuid.NewString()
	}

	client := catalog.NewClient(cfg.APIBaseURL, listenerID)
	graph := player.NewPCMGraph(cfg.FFmpegPath)
	session := player.NewSession(graph, client, player.Options{
		RelatedLimit:        cfg.RelatedTracksLimit,
		StillListeningAfter: cfg.StillListeningAfter,
	})
	defer session.Close()

	// Resolve and queue the requested tracks before serving.
	if len(args) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		tracks := make([]model.Track, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				cancel()
				logger.Fatal("invalid track id", logger.String("arg", arg))
			}
			track, err := client.Track(ctx, id)
			if err != nil {
				cancel()
				return err
			}
			tracks = append(tracks, *track)
		}
		cancel()
		session.SetQueue(tracks)
	}

	router := mux.NewRouter()
	router.HandleFunc("/state", session.ServeState)
	router.HandleFunc("/control/{action}", controlHandler(session)).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         playListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("player listening",
			logger.String("addr", playListenAddr),
			logger.String("listenerId", listenerID))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// controlHandler maps POST /control/{action} onto session operations.
func controlHandler(session *player.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["action"] {
		case "toggle":
			session.TogglePlayPause()
		case "pause":
			session.Pause()
		case "resume":
			session.Resume()
		case "next":
			session.SkipForward()
		case "prev":
			session.SkipBackward()
		case "shuffle":
			session.ToggleShuffle()
		case "repeat":
			session.ToggleRepeat()
		case "mute":
			session.ToggleMute()
		case "confirm-listening":
			session.ConfirmStillListening()
		case "volume":
			v, err := strconv.Atoi(r.URL.Query().Get("value"))
			if err != nil {
				http.Error(w, "volume requires ?value=0..100", http.StatusBadRequest)
				return
			}
			session.SetVolume(v)
		case "seek":
			s, err := strconv.ParseFloat(r.URL.Query().Get("to"), 64)
			if err != nil {
				http.Error(w, "seek requires ?to=<seconds>", http.StatusBadRequest)
				return
			}
			session.Seek(s)
		default:
			http.Error(w, "unknown action", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
