// Command client is a minimal terminal chat client. It remembers the chosen
// display name across sessions, joins over the WebSocket endpoint, prints
// incoming state events, and sends each typed line as a message.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/namestore"
	ws "github.com/chatflow/server/internal/websocket"
	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	flag.Parse()

	store, err := namestore.Default()
	if err != nil {
		log.Fatalf("failed to open name store: %v", err)
	}

	username := resolveUsername(store)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "username=" + url.QueryEscape(username)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", u.String(), err)
	}
	defer conn.Close()

	fmt.Printf("Connected as %s. Type a message and press enter; /quit to leave.\n", username)

	go readLoop(conn, username)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			break
		}
		intent := ws.ClientIntent{Type: ws.IntentMessage, Text: line}
		raw, _ := json.Marshal(intent)
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Printf("send failed: %v", err)
			break
		}
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// resolveUsername loads the persisted display name or prompts for a new
// one until it passes validation, then persists it for the next session.
func resolveUsername(store *namestore.Store) string {
	if name, ok := store.Load(); ok {
		return name
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Choose your username (2-20 characters): ")
		if !scanner.Scan() {
			os.Exit(1)
		}
		name := strings.TrimSpace(scanner.Text())
		if err := chat.ValidateUsername(name); err != nil {
			fmt.Println(err)
			continue
		}
		if err := store.Save(name); err != nil {
			log.Printf("could not persist username: %v", err)
		}
		return name
	}
}

// readLoop prints server events until the connection drops.
func readLoop(conn *websocket.Conn, username string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Println("disconnected")
			os.Exit(0)
		}

		var event ws.ServerEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Type {
		case ws.EventMessages:
			if n := len(event.Messages); n > 0 {
				last := event.Messages[n-1]
				if last.AuthorID != username {
					fmt.Printf("%s: %s\n", last.AuthorID, last.Text)
				}
			}
		case ws.EventUsers:
			if event.Users != nil {
				fmt.Printf("-- %d online --\n", event.Users.OnlineCount)
			}
		case ws.EventTyping:
			if len(event.Typing) > 0 {
				fmt.Printf("-- %s typing --\n", strings.Join(event.Typing, ", "))
			}
		case ws.EventError:
			fmt.Printf("error: %s\n", event.Error)
		}
	}
}
