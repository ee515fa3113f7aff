package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

// topicAdmin is the part of the topic admin API used to check topics exist.
type topicAdmin interface {
	GetTopic(ctx context.Context, req *pubsubpb.GetTopicRequest, opts ...gax.CallOption) (*pubsubpb.Topic, error)
}

// Client publishes outbox events to Pub/Sub. Topics are never created here;
// they must be provisioned ahead of time.
type Client struct {
	client    *pubsub.Client
	admin     topicAdmin
	projectID string
	topics    []string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errors.New("pubsub topic name is required")
	}

	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, admin: raw.TopicAdminClient, projectID: project, topics: topics}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub.ready")
	}
	return c, nil
}

// topicNames returns the configured topics, trimmed and deduplicated.
func topicNames(cfg config.PubSubConfig) []string {
	var out []string
	for _, name := range []string{cfg.DomainTopic, cfg.PaymentTopic} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			dup = dup || seen == name
		}
		if !dup {
			out = append(out, name)
		}
	}
	return out
}

// Ping checks that every configured topic exists and reports all that do not.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errors.New("pubsub client not initialized")
	}
	var errs error
	for _, name := range c.topics {
		_, err := c.admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topicResourceName(name)})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("topic %q does not exist", name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("checking topic %q: %w", name, err))
		}
	}
	return errs
}

// Publisher returns a handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicResourceName(name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case c == nil || name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + name
}
