package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/mqtt"
	"github.com/autopeer-io/denhub/pkg/mqtt/topic"
)

// ExampleClient shows how a device bridges its frames over MQTT: it listens
// on its downlink topic and publishes on its uplink topic.
func ExampleClient() {
	topics := topic.NewBuilder("denhub/v1")

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "denhub-camera-cam1",
		Username:       "cam1",
		Password:       "device-token",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		WillTopic:      topics.Status("cam1"),
		WillPayload:    []byte(`{"online":false}`),
		WillQoS:        1,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Start returns at once; the connection is kept up in the background.
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	onFrame := func(ctx context.Context, topic string, payload []byte) {
		fmt.Printf("frame on %s: %s\n", topic, payload)
	}
	if err := client.Subscribe(ctx, topics.Downlink("cam1"), 1, onFrame); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	heartbeat := []byte(`{"cmd":"_sendHeartbeat","args":{}}`)
	if err := client.Publish(ctx, topics.Uplink("cam1"), 1, false, heartbeat); err != nil {
		log.Error(err, "Failed to publish heartbeat")
	}

	client.Disconnect(ctx)
}
