// Terminal test client for the gateway. Logs in via the api, opens the
// websocket, joins a room, and relays stdin lines as messages. Slash
// commands: /join <roomId>, /leave, /typing, /quit.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chatwire/pkg/model"
)

type loginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID, username string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"userId": userID, "username": username})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.Token, nil
}

func send(c *websocket.Conn, event string, payload any) error {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func render(frame []byte) {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Printf("Received raw: %s", frame)
		return
	}

	switch env.Event {
	case model.EventNewMessage:
		var msg model.Message
		if json.Unmarshal(env.Data, &msg) == nil {
			fmt.Printf("\r%s: %s\n> ", msg.User.Username, msg.Content)
			return
		}
	case model.EventUserIsTyping:
		var data model.UserIsTypingData
		if json.Unmarshal(env.Data, &data) == nil {
			fmt.Printf("\rUser %s is typing...\n> ", data.UserID)
			return
		}
	case model.EventOnlineCount:
		var data model.OnlineCountData
		if json.Unmarshal(env.Data, &data) == nil {
			fmt.Printf("\r[%s] %d online\n> ", data.RoomID, data.Count)
			return
		}
	case model.EventUserLeftRoom:
		var data model.UserLeftRoomData
		if json.Unmarshal(env.Data, &data) == nil {
			fmt.Printf("\r%s left %s\n> ", data.Username, data.RoomID)
			return
		}
	}
	fmt.Printf("\r[%s] %s\n> ", env.Event, env.Data)
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	username := flag.String("name", "", "display name (defaults to user id)")
	roomID := flag.String("room", "", "room id to join on connect")
	flag.Parse()

	name := *username
	if name == "" {
		name = *userID
	}

	log.Printf("Logging in as %s...", name)
	token, err := login(*apiAddr, *userID, name)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	currentRoom := *roomID
	if currentRoom != "" {
		if err := send(c, model.EventJoinRoom, currentRoom); err != nil {
			log.Fatal("join:", err)
		}
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			render(frame)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			var err error

			switch {
			case text == "":
			case text == "/quit":
				close(interrupt)
				return
			case strings.HasPrefix(text, "/join "):
				currentRoom = strings.TrimSpace(strings.TrimPrefix(text, "/join "))
				err = send(c, model.EventJoinRoom, currentRoom)
			case text == "/leave" && currentRoom != "":
				err = send(c, model.EventLeaveRoom, model.RoomData{RoomID: currentRoom})
				currentRoom = ""
			case text == "/typing" && currentRoom != "":
				err = send(c, model.EventUserTyping, model.TypingData{RoomID: currentRoom})
			case currentRoom == "":
				fmt.Println("join a room first: /join <roomId>")
			default:
				err = send(c, model.EventSendMessage, model.SendMessageData{Content: text, RoomID: currentRoom})
			}

			if err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
