// Package client talks to a running quill daemon: streaming runs over the
// websocket endpoint plus plain REST calls for everything else.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/igoryan-dao/quill/internal/protocol"
)

// Client handles communication with a quill daemon.
type Client struct {
	addr      string
	conn      *websocket.Conn
	send      chan any
	done      chan struct{}
	http      *http.Client
	OnMessage func(protocol.RPCMessage)
	OnClosed  func()
	mu        sync.Mutex
	idCounter int
}

func New(addr string) *Client {
	return &Client{
		addr: addr,
		send: make(chan any, 100),
		done: make(chan struct{}),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Connect opens the streaming websocket.
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws/generate"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = conn

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) Close() {
	close(c.done)
}

// Generate sends a goal over the stream and returns the request id its
// events will carry.
func (c *Client) Generate(goal, docID string) int {
	c.mu.Lock()
	c.idCounter++
	id := c.idCounter
	c.mu.Unlock()

	msg := protocol.RPCMessage{
		ID:   id,
		Type: protocol.TypeGenerate,
		Payload: protocol.EncodeRPC(protocol.GenerateRequest{
			Goal:  goal,
			DocID: docID,
		}),
	}
	c.send <- msg
	return id
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		if c.OnClosed != nil {
			c.OnClosed()
		}
	}()

	for {
		var msg protocol.RPCMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("Write error: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// GetJSON fetches a REST endpoint and decodes the response into out.
func (c *Client) GetJSON(path string, out any) error {
	resp, err := c.http.Get("http://" + c.addr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Upload sends a local file to POST /upload and returns the decoded
// response.
func (c *Client) Upload(path string) (*protocol.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	resp, err := c.http.Post("http://"+c.addr+"/upload", writer.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeError(resp *http.Response) error {
	var e protocol.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Detail != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Detail)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
