package xmlrpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
)

type recordedCall struct {
	methodName string
	arguments  []any
}

type stubTransport struct {
	calls        []recordedCall
	callError    error
	sessionKey   string
	listPayloads []packagePayload
}

func (transport *stubTransport) Call(serviceMethod string, arguments any, reply any) error {
	argumentSlice, _ := arguments.([]any)
	transport.calls = append(transport.calls, recordedCall{methodName: serviceMethod, arguments: argumentSlice})
	if transport.callError != nil {
		return transport.callError
	}

	switch target := reply.(type) {
	case *string:
		*target = transport.sessionKey
	case *[]packagePayload:
		*target = transport.listPayloads
	}
	return nil
}

func TestNormalizeServerURL(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expected    string
		expectedErr error
	}{
		{name: "BareHostname", input: "spacewalk.example.com", expected: "https://spacewalk.example.com/rpc/api"},
		{name: "HTTPUpgradedToHTTPS", input: "http://spacewalk.example.com", expected: "https://spacewalk.example.com/rpc/api"},
		{name: "EndpointSuffixPreserved", input: "https://spacewalk.example.com/rpc/api", expected: "https://spacewalk.example.com/rpc/api"},
		{name: "TrailingSlashTrimmed", input: "https://spacewalk.example.com/", expected: "https://spacewalk.example.com/rpc/api"},
		{name: "EmptyRejected", input: "   ", expectedErr: ErrServerURLRequired},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			normalizedURL, normalizationError := NormalizeServerURL(testCase.input)
			if testCase.expectedErr != nil {
				require.ErrorIs(t, normalizationError, testCase.expectedErr)
				return
			}
			require.NoError(t, normalizationError)
			require.Equal(t, testCase.expected, normalizedURL)
		})
	}
}

func TestCallsRequireSession(t *testing.T) {
	transport := &stubTransport{}
	client := &Client{transport: transport}

	_, callError := client.GetChannel(context.Background(), "base-channel")
	require.ErrorIs(t, callError, ErrSessionNotEstablished)
	require.Empty(t, transport.calls)
}

func TestLoginPrependsSessionKey(t *testing.T) {
	transport := &stubTransport{sessionKey: "session-token"}
	client := &Client{transport: transport}

	require.NoError(t, client.Login(context.Background(), "operator", "secret"))
	_, callError := client.GetChannel(context.Background(), "base-channel")
	require.NoError(t, callError)

	require.Len(t, transport.calls, 2)
	require.Equal(t, authLoginMethodConstant, transport.calls[0].methodName)
	require.Equal(t, channelGetDetailsMethodConstant, transport.calls[1].methodName)
	require.Equal(t, "session-token", transport.calls[1].arguments[0])
	require.Equal(t, "base-channel", transport.calls[1].arguments[1])
}

func TestNotFoundFaultMapping(t *testing.T) {
	transport := &stubTransport{sessionKey: "session-token", callError: errors.New("redstone.xmlrpc.XmlRpcFault: no_such_channel")}
	client := &Client{transport: transport, sessionKey: "session-token"}

	_, callError := client.GetChannel(context.Background(), "missing-channel")
	require.True(t, catalog.IsNotFound(callError))
}

func TestAddPackageResolvesIdentifierFirst(t *testing.T) {
	transport := &stubTransport{listPayloads: []packagePayload{{ID: 42, Name: "foo", Version: "1.0", Release: "1", Arch: "x86_64"}}}
	client := &Client{transport: transport, sessionKey: "session-token"}

	reference := catalog.PackageReference{Name: "foo", Version: "1.0", Release: "1", Architecture: "x86_64"}
	require.NoError(t, client.AddPackage(context.Background(), "dev-channel", reference))

	require.Len(t, transport.calls, 2)
	require.Equal(t, packagesFindByNvreaMethodConstant, transport.calls[0].methodName)
	require.Equal(t, channelAddPackagesMethodConstant, transport.calls[1].methodName)
	require.Equal(t, []int64{42}, transport.calls[1].arguments[2])
}

func TestSubscriptionCallsSplitBaseAndChildMethods(t *testing.T) {
	transport := &stubTransport{}
	client := &Client{transport: transport, sessionKey: "session-token"}

	require.NoError(t, client.SubscribeSystem(context.Background(), 101, "qa-web"))
	require.NoError(t, client.SubscribeChildChannels(context.Background(), 101, []string{"qa-web-extras", "qa-web-devel"}))

	require.Len(t, transport.calls, 2)
	require.Equal(t, systemSetBaseChannelMethodConstant, transport.calls[0].methodName)
	require.Equal(t, "qa-web", transport.calls[0].arguments[2])
	require.Equal(t, systemSetChildChannelsMethod, transport.calls[1].methodName)
	require.Equal(t, []string{"qa-web-extras", "qa-web-devel"}, transport.calls[1].arguments[2])
}

func TestCancelledContextStopsCalls(t *testing.T) {
	transport := &stubTransport{}
	client := &Client{transport: transport, sessionKey: "session-token"}

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	callError := client.DeleteChannel(cancelledContext, "dev-channel")
	require.ErrorIs(t, callError, context.Canceled)
	require.Empty(t, transport.calls)
}
