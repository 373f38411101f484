// Command loadtest opens many websocket clients against a running relay,
// joins them to one room and reports how many chat events each received.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/chatrelay/internal/model"
)

func main() {
	endpoint := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	clients := flag.Int("clients", 50, "number of concurrent clients")
	room := flag.String("room", "loadtest", "room to join")
	messages := flag.Int("messages", 10, "messages sent per client")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between messages")
	settle := flag.Duration("settle", 3*time.Second, "how long to keep reading after the last send")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(*messages)*(*interval)+*settle+30*time.Second)
	defer cancel()

	var sent, received atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := range *clients {
		username := fmt.Sprintf("load-%d", i)
		g.Go(func() error {
			return runClient(ctx, *endpoint, username, *room, *messages, *interval, *settle, &sent, &received)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("load test failed: %v", err)
	}

	elapsed := time.Since(start)
	expected := int64(*clients) * int64(*clients) * int64(*messages)
	log.Printf("clients=%d sent=%d received=%d expected>=%d elapsed=%s",
		*clients, sent.Load(), received.Load(), expected, elapsed.Round(time.Millisecond))
}

func runClient(ctx context.Context,
	endpoint, username, room string,
	messages int,
	interval, settle time.Duration,
	sent, received *atomic.Int64) error {

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial [%s]: %w", endpoint, err)
	}
	defer conn.CloseNow()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt model.ChatEvent
			if err := wsjson.Read(readCtx, conn, &evt); err != nil {
				return
			}
			if evt.Kind == model.KindMessage {
				received.Add(1)
			}
		}
	}()

	join := model.ClientFrame{Type: model.FrameJoin, Username: username, Room: room}
	if err := wsjson.Write(ctx, conn, join); err != nil {
		return fmt.Errorf("failed to join as %s: %w", username, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		msg := model.ClientFrame{
			Type:    model.FrameMessage,
			Content: fmt.Sprintf("message %d from %s", i, username),
		}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return fmt.Errorf("failed to send as %s: %w", username, err)
		}
		sent.Add(1)
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	stopReading()
	<-done

	return conn.Close(websocket.StatusNormalClosure, "done")
}
