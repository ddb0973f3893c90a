package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	name := flag.String("name", "user1", "display name")
	avatar := flag.String("avatar", "", "avatar emoji")
	dmUser := flag.String("dm", "", "display name to dm (overrides -group)")
	group := flag.String("group", "general", "group conversation id")
	flag.Parse()

	log := logrus.New()

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.WithField("url", u.String()).Info("Connecting")

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer c.Close()

	var writeMu sync.Mutex
	send := func(kind string, data any) error {
		raw, err := json.Marshal(map[string]any{"type": kind, "data": data})
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteMessage(websocket.TextMessage, raw)
	}

	s := newSession(os.Stdout, send, *dmUser, *group)
	if err := send("declare_identity", map[string]string{"name": *name, "avatar": *avatar}); err != nil {
		log.WithError(err).Fatal("declare")
	}

	done := make(chan struct{})

	// Read notifications, several per frame, one per line
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.WithError(err).Info("read")
				return
			}
			dec := json.NewDecoder(bytes.NewReader(message))
			for dec.More() {
				var f frame
				if err := dec.Decode(&f); err != nil {
					log.WithError(err).Warnf("Received raw: %s", message)
					break
				}
				if err := s.handle(f); err != nil {
					log.WithError(err).Warn("handle")
				}
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	// Read from stdin and send events
	go func() {
		defer close(quit)
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			more, err := s.command(scanner.Text())
			if err != nil {
				log.WithError(err).Warn("write")
				return
			}
			if !more {
				return
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
		return
	case <-quit:
	case <-interrupt:
		log.Info("interrupt")
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	writeMu.Lock()
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
	if err != nil {
		log.WithError(err).Warn("write close")
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
