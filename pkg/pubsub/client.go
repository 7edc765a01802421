// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// topicLookup is the admin call used to confirm a topic exists.
type topicLookup interface {
	GetTopic(ctx context.Context, req *pubsubpb.GetTopicRequest, opts ...gax.CallOption) (*pubsubpb.Topic, error)
}

type Client struct {
	conn    *gcppubsub.Client
	topics  topicLookup
	project string
	orders  string
}

// NewClient connects to Pub/Sub and refuses to start when the orders topic is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	orders := strings.TrimSpace(cfg.OrdersTopic)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case orders == "":
		return nil, errors.New("pubsub orders topic is required")
	}

	conn, err := gcppubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{conn: conn, topics: conn.TopicAdminClient, project: project, orders: orders}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", orders), "pubsub connected")
	}
	return c, nil
}

// Ping confirms the orders topic is still visible to this project.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.topics == nil {
		return errors.New("pubsub client not initialized")
	}
	name := TopicResourceName(c.project, c.orders)
	if name == "" {
		return fmt.Errorf("topic %q not configured", c.orders)
	}
	_, err := c.topics.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", name)
	default:
		return fmt.Errorf("checking topic %s: %w", name, err)
	}
}

// Publisher accepts a bare topic id or a full resource name.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.conn == nil {
		return nil
	}
	name := TopicResourceName(c.project, topic)
	if name == "" {
		return nil
	}
	return c.conn.Publisher(name)
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
// It returns "" when neither a full name nor a project is available.
func TopicResourceName(project, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + topic
}
