// canvasctl is a development client for the canvas hub: save a snapshot file, read history over gRPC,
// or watch a project's version stream over the websocket endpoint.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	canvasv1 "project-canvas-hub/api/canvas/v1"
	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/security"
)

const version = "0.1.0"

const usage = `Canvas hub control.

Usage:
    canvasctl save [options] --project=<project_id> [--requester=<requester_id>] <snapshot_file>
    canvasctl latest [options] --project=<project_id>
    canvasctl history [options] --project=<project_id> [--since=<seq>] [--limit=<n>]
    canvasctl watch [options] --project=<project_id>
    canvasctl -h | --help
    canvasctl --version

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --grpc=<addr>                  gRPC address [default: localhost:9090].
    --ws=<url>                     Websocket endpoint [default: ws://localhost:8080/ws].
    --token=<token>                Shared OpenClaw token.
    --access_token=<jwt>           Bearer access token; its subject becomes the requester.
    --project=<project_id>         Project id.
    --requester=<requester_id>     Requester id recorded on the entry [default: canvasctl].
    --since=<seq>                  Only entries after this sequence number [default: 0].
    --limit=<n>                    Page size; 0 means the server maximum [default: 0].
    --timeout=<duration>           Per-call timeout [default: 10s].`

var (
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "canvasctl: ", 0)
)

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		Err.Fatal(err)
	}

	if save_, _ := opts.Bool("save"); save_ {
		save(opts)
	} else if latest_, _ := opts.Bool("latest"); latest_ {
		latest(opts)
	} else if history_, _ := opts.Bool("history"); history_ {
		history(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func save(opts docopt.Opts) {
	path, _ := opts.String("<snapshot_file>")
	raw, err := os.ReadFile(path)
	if err != nil {
		Err.Fatal(err)
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		Err.Fatalf("%s: %v", path, err)
	}
	projectID, _ := opts.String("--project")
	requesterID, _ := opts.String("--requester")

	client, ctx, done := dialGRPC(opts)
	defer done()
	resp, err := client.SaveCanvas(ctx, &canvasv1.SaveCanvasRequest{ProjectID: projectID, RequesterID: requesterID, Snapshot: snapshot})
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("saved %s at seq %d", projectID, resp.SequenceNumber)
}

func latest(opts docopt.Opts) {
	projectID, _ := opts.String("--project")
	client, ctx, done := dialGRPC(opts)
	defer done()
	resp, err := client.GetLatest(ctx, &canvasv1.GetLatestRequest{ProjectID: projectID})
	if err != nil {
		Err.Fatal(err)
	}
	if resp.Entry == nil {
		Out.Printf("%s has no history", projectID)
		return
	}
	printJSON(resp.Entry)
}

func history(opts docopt.Opts) {
	projectID, _ := opts.String("--project")
	since := intOpt(opts, "--since")
	limit := intOpt(opts, "--limit")
	client, ctx, done := dialGRPC(opts)
	defer done()
	resp, err := client.ListHistory(ctx, &canvasv1.ListHistoryRequest{ProjectID: projectID, Since: int64(since), Limit: limit})
	if err != nil {
		Err.Fatal(err)
	}
	for _, e := range resp.Entries {
		Out.Printf("%d\t%s\t%s\tnodes=%d edges=%d", e.SequenceNumber, e.CreatedAt.Format(time.RFC3339), e.CreatedBy, len(e.Snapshot.Nodes), len(e.Snapshot.Edges))
	}
}

// watch prints every frame the hub sends for the project until interrupted.
func watch(opts docopt.Opts) {
	endpoint, _ := opts.String("--ws")
	projectID, _ := opts.String("--project")
	u, err := url.Parse(endpoint)
	if err != nil {
		Err.Fatalf("--ws: %v", err)
	}
	q := u.Query()
	q.Set("projectId", projectID)
	u.RawQuery = q.Encode()
	header := http.Header{}
	if token, _ := opts.String("--token"); token != "" {
		header.Set(security.TokenHeader, token)
	}
	if jwt, _ := opts.String("--access_token"); jwt != "" {
		header.Set("Authorization", "Bearer "+jwt)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			Err.Fatalf("dial %s: %v (status %d)", endpoint, err, resp.StatusCode)
		}
		Err.Fatalf("dial %s: %v", endpoint, err)
	}
	defer ws.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				Err.Printf("read: %v", err)
			}
			return
		}
		Out.Println(string(data))
	}
}

func dialGRPC(opts docopt.Opts) (canvasv1.CanvasServiceClient, context.Context, func()) {
	addr, _ := opts.String("--grpc")
	timeout, err := time.ParseDuration(mustString(opts, "--timeout"))
	if err != nil {
		Err.Fatalf("--timeout: %v", err)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		Err.Fatal(err)
	}

	var md []string
	if token, _ := opts.String("--token"); token != "" {
		md = append(md, strings.ToLower(security.TokenHeader), token)
	}
	if jwt, _ := opts.String("--access_token"); jwt != "" {
		md = append(md, "authorization", "Bearer "+jwt)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if len(md) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, md...)
	}
	return canvasv1.NewCanvasServiceClient(conn), ctx, func() {
		cancel()
		_ = conn.Close()
	}
}

func intOpt(opts docopt.Opts, key string) int {
	n, err := strconv.Atoi(mustString(opts, key))
	if err != nil || n < 0 {
		Err.Fatalf("%s must be a non-negative integer", key)
	}
	return n
}

func mustString(opts docopt.Opts, key string) string {
	s, _ := opts.String(key)
	return s
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		Err.Fatal(err)
	}
}
