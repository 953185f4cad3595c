package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmon/internal/models"
	"netmon/internal/session"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastsRecords(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	hub.RecordInserted(models.PacketRecord{
		Seq: 7, Timestamp: time.Now(),
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
		SrcPort: 1234, DstPort: 80,
		Protocol: models.ProtoTCP,
		Payload:  []byte("hi"), Text: "hi", PlainText: true, Length: 2,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "packet", msg.Type)

	var rec recordJSON
	require.NoError(t, json.Unmarshal(msg.Payload, &rec))
	assert.Equal(t, uint64(7), rec.Seq)
	assert.Equal(t, "TCP", rec.Protocol)
	require.NotNil(t, rec.Payload)
	assert.Equal(t, "hi", *rec.Payload)
}

func TestHubBroadcastsStatus(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	hub.StatusChanged(session.Status{State: "RUNNING", Interface: "eth0"})

	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)

	var st session.Status
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	assert.Equal(t, "RUNNING", st.State)
	assert.Equal(t, "eth0", st.Interface)
}

func TestHubSurvivesDisconnectedClients(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)
	conn.Close()

	// Broadcasting into a closing client must not panic or block.
	for i := 0; i < 10; i++ {
		hub.RecordInserted(models.PacketRecord{Seq: uint64(i + 1), Timestamp: time.Now(), Protocol: models.ProtoOther})
	}
}

func TestClientSendDropsPacketsWhenFull(t *testing.T) {
	c := &wsClient{sendCh: make(chan models.WSMessage, 2), done: make(chan struct{})}

	// Fill the buffer; the next packet is silently dropped.
	c.send(models.WSMessage{Type: "packet", Payload: []byte(`1`)})
	c.send(models.WSMessage{Type: "packet", Payload: []byte(`2`)})
	c.send(models.WSMessage{Type: "packet", Payload: []byte(`3`)})
	assert.Len(t, c.sendCh, 2)

	// A status update displaces a buffered packet instead of dropping.
	c.send(models.WSMessage{Type: "status", Payload: []byte(`{}`)})
	assert.Len(t, c.sendCh, 2)

	first := <-c.sendCh
	second := <-c.sendCh
	assert.Equal(t, "packet", first.Type)
	assert.Equal(t, "status", second.Type)
}
