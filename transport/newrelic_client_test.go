package transport

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/nrlogsink/common"
)

// MockNRClient is a mock type for the Logs interface.
type MockNRClient struct {
	mock.Mock
}

// CreateLogEntry is a mock method that satisfies the Logs interface.
func (m *MockNRClient) CreateLogEntry(batch interface{}) error {
	args := m.Called(batch)
	return args.Error(0)
}

// newNRClientTestCase represents a test case for the NewNRClient function.
type newNRClientTestCase struct {
	name        string // Name of the test case
	envDebug    string // Environment variable for debug
	region      string // New Relic region
	licenseKey  string // License key
	expectError bool   // Whether an error is expected
	description string // Description of the test case
}

// TestNewNRClient tests the NewNRClient function with different scenarios.
func TestNewNRClient(t *testing.T) {
	testCases := []newNRClientTestCase{
		{
			name:        "Debug enabled with license key",
			envDebug:    "true",
			region:      "us",
			licenseKey:  "valid_license_key",
			description: "Should work when a license key is provided",
		},
		{
			name:        "Debug disabled with license key",
			region:      "eu",
			licenseKey:  "valid_license_key",
			description: "Should work when a license key is provided",
		},
		{
			name:        "Invalid region with license key",
			region:      "invalid",
			licenseKey:  "valid_license_key",
			description: "Should handle invalid region gracefully",
		},
		{
			name:        "No license key",
			region:      "us",
			expectError: true,
			description: "Should fail without a license key",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envDebug != "" {
				os.Setenv(common.DebugEnabled, tc.envDebug)
				defer os.Unsetenv(common.DebugEnabled)
			}

			nrClient, err := NewNRClient(tc.region, tc.licenseKey, 5*time.Second)

			if tc.expectError {
				assert.ErrorIs(t, err, ErrMissingKey, tc.description)
			} else {
				assert.NoError(t, err, tc.description)
				assert.NotNil(t, nrClient)
			}
		})
	}
}

// TestClientDeliverer tests delivery through the New Relic client.
func TestClientDeliverer(t *testing.T) {
	mockNRClient := new(MockNRClient)
	mockNRClient.On("CreateLogEntry", mock.MatchedBy(func(b common.DetailedLogsBatch) bool {
		return len(b) == 1 && b[0].CommonData.Attributes.Application == "checkout" && len(b[0].Entries) == 2
	})).Return(nil).Once()

	d, err := NewClientDeliverer(mockNRClient, "checkout")
	require.NoError(t, err)

	outcome, err := d.Deliver(context.Background(), sampleItems())
	assert.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
	mockNRClient.AssertExpectations(t)
}

// TestClientDelivererFailure tests that client errors are network failures.
func TestClientDelivererFailure(t *testing.T) {
	mockNRClient := new(MockNRClient)
	mockNRClient.On("CreateLogEntry", mock.Anything).Return(errors.New("connection reset"))

	d, err := NewClientDeliverer(mockNRClient, "checkout")
	require.NoError(t, err)

	outcome, err := d.Deliver(context.Background(), sampleItems())
	assert.Equal(t, NetworkFailure, outcome)
	assert.ErrorContains(t, err, "connection reset")
}

// TestClientDelivererCancelled tests that a cancelled context skips the call.
func TestClientDelivererCancelled(t *testing.T) {
	mockNRClient := new(MockNRClient)
	d, err := NewClientDeliverer(mockNRClient, "checkout")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := d.Deliver(ctx, sampleItems())
	assert.Equal(t, NetworkFailure, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	mockNRClient.AssertNotCalled(t, "CreateLogEntry", mock.Anything)
}

// TestClientDelivererTimeout tests that a client call outliving the timeout is abandoned.
func TestClientDelivererTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mockNRClient := new(MockNRClient)
	mockNRClient.On("CreateLogEntry", mock.Anything).Return(nil).
		Run(func(mock.Arguments) { <-release })

	d, err := NewClientDeliverer(mockNRClient, "checkout", WithClientTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	outcome, err := d.Deliver(context.Background(), sampleItems())
	assert.Equal(t, NetworkFailure, outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestClientDelivererShutdown tests that cancelling the context abandons a call in progress.
func TestClientDelivererShutdown(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	called := make(chan struct{})
	mockNRClient := new(MockNRClient)
	mockNRClient.On("CreateLogEntry", mock.Anything).Return(nil).
		Run(func(mock.Arguments) {
			close(called)
			<-release
		})

	d, err := NewClientDeliverer(mockNRClient, "checkout")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-called
		cancel()
	}()
	outcome, err := d.Deliver(ctx, sampleItems())
	assert.Equal(t, NetworkFailure, outcome)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestNewClientDelivererValidation tests the required arguments.
func TestNewClientDelivererValidation(t *testing.T) {
	_, err := NewClientDeliverer(nil, "checkout")
	assert.Error(t, err)

	_, err = NewClientDeliverer(new(MockNRClient), "")
	assert.ErrorIs(t, err, ErrMissingApplication)
}
