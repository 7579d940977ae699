package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type event struct {
	JobID  string `json:"job_id"`
	Method string `json:"method"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{"method": e.Method}
}

func newTestPublisher(t *testing.T, topics ...string) (*Publisher, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	for _, name := range topics {
		_, err := client.CreateTopic(ctx, name)
		require.NoError(t, err)
	}
	pub := NewWithClient(client, "retrievals")
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishDefaultTopicWithAttributes(t *testing.T) {
	pub, srv := newTestPublisher(t, "retrievals")

	id, err := pub.Publish(context.Background(), "", event{JobID: "SL1", Method: "direct_link"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "direct_link", msgs[0].Attributes["method"])

	var got event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "SL1", got.JobID)
}

func TestPublishExplicitTopic(t *testing.T) {
	pub, srv := newTestPublisher(t, "retrievals", "audit")

	_, err := pub.Publish(context.Background(), "audit", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Len(t, srv.Messages(), 1)
}

func TestPublishErrors(t *testing.T) {
	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "t", "x")
	require.Error(t, err)

	pub, _ := newTestPublisher(t, "retrievals")
	_, err = pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")

	_, err = pub.Publish(context.Background(), "missing-topic", "x")
	require.ErrorContains(t, err, "publish message")
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
