package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
)

func TestTopicNamesSkipsBlanksAndDuplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{DomainTopic: " events ", PaymentTopic: "events"})
	require.Equal(t, []string{"events"}, names)

	require.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "freight-prod"}
	require.Equal(t, "projects/freight-prod/topics/domain", c.topicResourceName("domain"))
	require.Equal(t, "projects/other/topics/payments", c.topicResourceName("projects/other/topics/payments"))
	require.Empty(t, c.topicResourceName("  "))

	var nilClient *Client
	require.Empty(t, nilClient.topicResourceName("domain"))
	require.Nil(t, nilClient.Publisher("domain"))
}

type fakeAdmin struct {
	missing map[string]bool
	err     error
}

func (f fakeAdmin) GetTopic(_ context.Context, req *pubsubpb.GetTopicRequest, _ ...gax.CallOption) (*pubsubpb.Topic, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.missing[req.GetTopic()] {
		return nil, status.Error(codes.NotFound, "no topic")
	}
	return &pubsubpb.Topic{Name: req.GetTopic()}, nil
}

func TestPingReportsEveryMissingTopic(t *testing.T) {
	c := &Client{
		projectID: "freight-prod",
		topics:    []string{"domain", "payments"},
		admin: fakeAdmin{missing: map[string]bool{
			"projects/freight-prod/topics/domain":   true,
			"projects/freight-prod/topics/payments": true,
		}},
	}
	err := c.Ping(context.Background())
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorContains(t, err, `topic "payments" does not exist`)

	c.admin = fakeAdmin{}
	require.NoError(t, c.Ping(context.Background()))

	c.admin = fakeAdmin{err: status.Error(codes.PermissionDenied, "denied")}
	require.ErrorContains(t, c.Ping(context.Background()), "checking topic")

	var nilClient *Client
	require.Error(t, nilClient.Ping(context.Background()))
}
