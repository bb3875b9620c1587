package main

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/chatwire/pkg/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// serveWs authenticates the handshake and hands the connection to the hub.
// Rejection happens before the upgrade so an unauthenticated client never
// holds a usable connection.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractToken(r)
	if err != nil {
		log.Println("Unauthorized: no token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		log.Printf("Unauthorized: invalid token: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		ConnID:   uuid.NewString(),
		UserID:   claims.UserID,
		Username: claims.Username,
	}
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
