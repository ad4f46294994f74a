package shopsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// SyncPubSubPayload is the message the trigger endpoint publishes and the
// push worker consumes. The worker owns the sync_log row so a message that
// never arrives leaves no dangling started run.
type SyncPubSubPayload struct {
	Store    string `json:"store"`
	SyncType string `json:"sync_type"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// PubSubPushEnvelope is the standard Pub/Sub push wrapper.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func PublishSyncRequest(ctx context.Context, payload SyncPubSubPayload) error {
	topicName := strings.TrimSpace(os.Getenv("SYNC_TOPIC"))
	if topicName == "" {
		topicName = "stocklink-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler executes the requested sync run. It always returns 204:
// Pub/Sub redelivers on non-2xx, and a run that failed for a real reason has
// its failure recorded in sync_log already, so redelivery would only repeat
// the failure.
func PubSubPushHandler(runner *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.Store == "" {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		opts := RunOptions{DryRun: payload.DryRun}
		switch payload.SyncType {
		case "inventory":
			_, _ = runner.SyncInventory(ctx, payload.Store, opts)
		case "orders":
			_, _ = runner.SyncOrders(ctx, payload.Store, opts)
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
