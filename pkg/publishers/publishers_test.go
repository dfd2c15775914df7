package publishers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
)

const samplePublishersYAML = `publishers:
  - id: relay
    type: http
    http:
      url: https://relay.example.org/hook
      method: post
      headers:
        Authorization: "Bearer ${RELAY_TOKEN}"
  - id: queue-main
    type: queue
    queue:
      provider: aws-sqs
      aws:
        uri: https://sqs.eu-west-1.amazonaws.com/123/articles
        region: eu-west-1
        access_key_id: AKIAEXAMPLE
        secret_access_key: ${SQS_SECRET}
  - id: disabled-sink
    type: http
    enabled: false
    http:
      url: https://off.example.org/hook
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegistry_YAML(t *testing.T) {
	t.Setenv("RELAY_TOKEN", "s3cret")
	t.Setenv("SQS_SECRET", "q-secret")

	reg, err := LoadRegistry(writeConfig(t, "publishers.yaml", samplePublishersYAML))
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 3)

	relay, ok := reg.ByID("relay")
	require.True(t, ok)
	assert.Equal(t, TypeHTTP, relay.Type)
	assert.Equal(t, "POST", relay.HTTP.Method)
	assert.Equal(t, httpDefaultTimeoutSeconds, relay.HTTP.TimeoutSeconds)
	assert.Equal(t, "Bearer s3cret", relay.HTTP.Headers["Authorization"])

	queue, ok := reg.ByID("queue-main")
	require.True(t, ok)
	assert.Equal(t, QueueProviderAWSSQS, queue.Queue.Provider)
	assert.Equal(t, "q-secret", queue.Queue.AWS.SecretAccessKey)

	enabled := reg.Enabled()
	require.Len(t, enabled, 2)
	for _, cfg := range enabled {
		assert.NotEqual(t, "disabled-sink", cfg.ID)
	}
}

func TestLoadRegistry_JSON(t *testing.T) {
	content := `{"publishers": [{"id": "relay", "type": "http", "http": {"url": "https://relay.example.org"}}]}`
	reg, err := LoadRegistry(writeConfig(t, "publishers.json", content))
	require.NoError(t, err)
	require.Len(t, reg.All(), 1)
}

func TestLoadRegistry_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty list",
			yaml:    "publishers: []\n",
			wantErr: "contains no publishers",
		},
		{
			name: "duplicate ids",
			yaml: `publishers:
  - id: twin
    type: http
    http: {url: "https://a.example.org"}
  - id: twin
    type: http
    http: {url: "https://b.example.org"}
`,
			wantErr: "duplicate publisher id",
		},
		{
			name: "unsupported provider",
			yaml: `publishers:
  - id: bus
    type: queue
    queue:
      provider: azure
`,
			wantErr: "not supported",
		},
		{
			name: "unknown type",
			yaml: `publishers:
  - id: pigeon
    type: carrier
`,
			wantErr: "not supported",
		},
		{
			name: "http without url",
			yaml: `publishers:
  - id: relay
    type: http
    http: {method: post}
`,
			wantErr: "http.url is required",
		},
		{
			name: "sqs missing region",
			yaml: `publishers:
  - id: q
    type: queue
    queue:
      provider: aws-sqs
      aws:
        uri: https://sqs.example/q
        access_key_id: k
        secret_access_key: s
`,
			wantErr: "sqs.region is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRegistry(writeConfig(t, "publishers.yaml", tc.yaml))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "open publishers file")
}

func TestHTTPPublisher_DeliversEvent(t *testing.T) {
	var (
		gotMethod, gotAuth, gotCT string
		gotBody                   []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	pub, err := newHTTPPublisher(context.Background(), PublisherConfig{
		ID:   "relay",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{
			URL:            ts.URL,
			Method:         "POST",
			Headers:        map[string]string{"Authorization": "Bearer s3cret"},
			TimeoutSeconds: 2,
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "relay", pub.ID())
	assert.Equal(t, TypeHTTP, pub.Type())

	evt := Event{
		Cycle:     7,
		EmittedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Articles:  []domain.Article{{ID: "a1", Title: "Hello"}},
	}
	require.NoError(t, pub.Publish(context.Background(), evt))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Contains(t, gotCT, "application/json")

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, uint64(7), decoded.Cycle)
	require.Len(t, decoded.Articles, 1)
	assert.Equal(t, "a1", decoded.Articles[0].ID)
}

func TestHTTPPublisher_EndpointRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "sink on fire", http.StatusInternalServerError)
	}))
	defer ts.Close()

	pub, err := newHTTPPublisher(context.Background(), PublisherConfig{
		ID:   "relay",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{URL: ts.URL, Method: "POST", TimeoutSeconds: 2},
	}, nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), Event{Cycle: 1})
	assert.ErrorContains(t, err, "status 500")
}

type fakeSQS struct {
	input *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSender_SendsCycleAttributes(t *testing.T) {
	fake := &fakeSQS{}
	s := &awsSQSSender{queueURL: "https://sqs.example/q", client: fake, log: nopLogger{}}

	evt := Event{Cycle: 12, Articles: []domain.Article{{ID: "a1"}, {ID: "a2"}}}
	require.NoError(t, s.Send(context.Background(), evt))

	require.NotNil(t, fake.input)
	assert.Equal(t, "https://sqs.example/q", aws.ToString(fake.input.QueueUrl))
	assert.Equal(t, "12", aws.ToString(fake.input.MessageAttributes["cycle"].StringValue))
	assert.Equal(t, "2", aws.ToString(fake.input.MessageAttributes["article_count"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.input.MessageBody)), &decoded))
	assert.Equal(t, uint64(12), decoded.Cycle)
	assert.Len(t, decoded.Articles, 2)
}

type fakeSNS struct {
	err   error
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	return &sns.PublishOutput{MessageId: aws.String("m-2")}, nil
}

func TestSNSSender_SendsCycleAttributes(t *testing.T) {
	fake := &fakeSNS{}
	s := &awsSNSSender{topicARN: "arn:aws:sns:eu-west-1:123:articles", client: fake, log: nopLogger{}}

	require.NoError(t, s.Send(context.Background(), Event{Cycle: 3}))

	require.NotNil(t, fake.input)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:articles", aws.ToString(fake.input.TopicArn))
	assert.Equal(t, "3", aws.ToString(fake.input.MessageAttributes["cycle"].StringValue))
}

func TestQueuePublisher_WrapsSendErrors(t *testing.T) {
	fake := &fakeSNS{err: io.ErrUnexpectedEOF}
	s := &awsSNSSender{topicARN: "arn:test", client: fake, log: nopLogger{}}
	p := &queuePublisher{id: "q", typ: TypeQueue, provider: QueueProviderAWSSNS, sender: s, log: nopLogger{}}

	err := p.Publish(context.Background(), Event{Cycle: 1})
	assert.ErrorContains(t, err, "queue provider aws-sns send failed")
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := DefaultRegistry()
	_, err := reg.PublisherFor(context.Background(), PublisherConfig{ID: "x", Type: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, "no publisher registered")
}

func TestBuildAll(t *testing.T) {
	cfgs := []PublisherConfig{
		{
			ID:   "relay",
			Type: TypeHTTP,
			HTTP: &HTTPPublisherConfig{URL: "https://relay.example.org", Method: "POST", TimeoutSeconds: 2},
		},
		{
			ID:   "queue-main",
			Type: TypeQueue,
			Queue: &QueuePublisherConfig{
				Provider: QueueProviderAWSSQS,
				AWS: &AWSSQSPublisherConfig{
					QueueURL:        "https://sqs.example/q",
					Region:          "eu-west-1",
					AccessKeyID:     "k",
					SecretAccessKey: "s",
				},
			},
		},
	}

	pubs, err := BuildAll(context.Background(), DefaultRegistry(), cfgs, nil)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "relay", pubs[0].ID())
	assert.Equal(t, TypeQueue, pubs[1].Type())
}

func TestBuildAll_NoConfigs(t *testing.T) {
	pubs, err := BuildAll(context.Background(), DefaultRegistry(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, pubs)
}
