package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// stream upgrades the request and writes every event until events closes
// or the client goes away. Subscriptions are made before upgrading so
// lookup failures still get a JSON error response.
func stream[T any](w http.ResponseWriter, r *http.Request, cancel context.CancelFunc, events <-chan T) {
	defer cancel()
	logger := svcctx.LoggerFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Time{})

	// The read side only exists to notice the client closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("websocket write failed", "path", r.URL.Path, "error", err)
			cancel()
			for range events {
			}
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// WatchJobEndpoint handles GET /api/ws/jobs/{id}.
type WatchJobEndpoint struct{}

func (e *WatchJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/ws/jobs/{id}", e.handler
}

func (e *WatchJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream job updates
//	@Description	Websocket stream of job_update messages. The server closes the
//	@Description	stream after the job reaches a terminal status.
//	@Tags			jobs
//	@Param			id	path	string	true	"Job ID"
//	@Success		101
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/ws/jobs/{id} [get]
func (e *WatchJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	sub, err := jm.Subscribe(ctx, r.PathValue("id"))
	if err != nil {
		cancel()
		writeServiceError(w, err)
		return
	}

	events := make(chan batch.Event)
	go func() {
		defer close(events)
		for ev := range sub {
			select {
			case events <- batch.Event{Type: batch.EventJobUpdate, Job: &ev}:
			case <-ctx.Done():
			}
		}
	}()
	stream(w, r, cancel, events)
}

func (e *WatchJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream job updates until the job finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), getServerURL(), "/api/ws/jobs/"+args[0])
		},
	}
}

// WatchBatchEndpoint handles GET /api/ws/batches/{id}.
type WatchBatchEndpoint struct{}

func (e *WatchBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/ws/batches/{id}", e.handler
}

func (e *WatchBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream batch updates
//	@Description	Websocket stream of job_update messages for every job of the
//	@Description	batch, followed by one batch_summary message.
//	@Tags			batches
//	@Param			id	path	string	true	"Batch ID"
//	@Success		101
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/ws/batches/{id} [get]
func (e *WatchBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	events, err := bc.Subscribe(ctx, r.PathValue("id"))
	if err != nil {
		cancel()
		writeServiceError(w, err)
		return
	}
	stream(w, r, cancel, events)
}

func (e *WatchBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream batch updates until every job finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), getServerURL(), "/api/ws/batches/"+args[0])
		},
	}
}

func watch(ctx context.Context, serverURL, path string) error {
	client := api.NewClient(serverURL)
	format := api.GetOutputFormat()
	err := client.Watch(ctx, path, func(msg json.RawMessage) error {
		return api.OutputStreamItem(os.Stdout, format, msg)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}
