package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/config"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"golang.org/x/sync/errgroup"
)

const (
	skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"
	natsImg              = "nats:2.11.6-alpine"
	testStream           = "STOREFRONT_TEST"
	testPrefix           = "storefront.test"
)

// RelaySuite runs a relay and a subscriber of two instances against a real JetStream server.
type RelaySuite struct {
	suite.Suite
	ctx           context.Context
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
	js            jetstream.JetStream
}

func (s *RelaySuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	s.nc, err = pnats.NewClient(natsURL, 5*time.Second)
	require.NoError(s.T(), err, "Failed to connect to NATS")

	s.js, err = pnats.NewJetStreamContext(s.nc)
	require.NoError(s.T(), err)
	require.NoError(s.T(), pnats.EnsureStream(s.ctx, s.js, testStream, testPrefix))
	// a second call finds the existing stream
	require.NoError(s.T(), pnats.EnsureStream(s.ctx, s.js, testStream, testPrefix))
}

func (s *RelaySuite) TearDownSuite() {
	s.nc.Close()
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.T().Logf("failed to terminate NATS container: %v", err)
	}
}

func TestRelayIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) TestEventsReachOtherInstances() {
	// given
	ctx, cancel := context.WithCancel(s.ctx)
	local := &recordingBroadcaster{}
	sub := NewSubscriber(local, "node-b", discardLogger())
	cfg := config.SubscriberConfig{
		Enabled:           true,
		Batch:             10,
		Timeout:           200 * time.Millisecond,
		Interval:          50 * time.Millisecond,
		InactiveThreshold: time.Minute,
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sub.Run(gCtx, s.js, testStream, testPrefix, cfg)
	})
	s.T().Cleanup(func() {
		cancel()
		require.ErrorIs(s.T(), g.Wait(), context.Canceled)
	})
	require.Eventually(s.T(), func() bool {
		_, err := s.js.Consumer(s.ctx, testStream, sub.ConsumerName())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	publisher := pnats.NewNatsPublisher(s.js)
	remote := NewRelay(publisher, testPrefix, "node-a", time.Second, discardLogger())
	self := NewRelay(publisher, testPrefix, "node-b", time.Second, discardLogger())

	// when
	self.Broadcast(s.ctx, service.EventNewMessage, map[string]string{"message": "mine"})
	remote.Broadcast(s.ctx, service.EventNewItem, map[string]string{"code": "H1"})
	self.Close()
	remote.Close()

	// then
	require.Eventually(s.T(), func() bool { return len(local.all()) == 1 }, 5*time.Second, 50*time.Millisecond)
	s.Equal([]broadcast{{event: service.EventNewItem, payload: `{"code":"H1"}`}}, local.all())
}
