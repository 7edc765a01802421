package pubsub

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{"shop-prod", "storefront-order-events", "projects/shop-prod/topics/storefront-order-events"},
		{"shop-prod", " projects/other/topics/orders ", "projects/other/topics/orders"},
		{"", "orders", ""},
		{"shop-prod", "  ", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatal("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
}

type fakeTopics struct {
	requested string
	err       error
}

func (f *fakeTopics) GetTopic(_ context.Context, req *pubsubpb.GetTopicRequest, _ ...gax.CallOption) (*pubsubpb.Topic, error) {
	f.requested = req.GetTopic()
	if f.err != nil {
		return nil, f.err
	}
	return &pubsubpb.Topic{Name: req.GetTopic()}, nil
}

func TestPingLooksUpOrdersTopic(t *testing.T) {
	topics := &fakeTopics{}
	c := &Client{topics: topics, project: "shop-prod", orders: "storefront-order-events"}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if topics.requested != "projects/shop-prod/topics/storefront-order-events" {
		t.Fatalf("unexpected topic lookup %q", topics.requested)
	}
}

func TestPingReportsMissingTopic(t *testing.T) {
	c := &Client{
		topics:  &fakeTopics{err: status.Error(codes.NotFound, "gone")},
		project: "shop-prod",
		orders:  "orders",
	}
	err := c.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing topic error, got %v", err)
	}

	c.topics = &fakeTopics{err: status.Error(codes.PermissionDenied, "nope")}
	err = c.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "checking topic") {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}
